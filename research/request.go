package research

import (
	"fmt"
	"strings"

	"github.com/sig-0/dutyrates/storage/types"
)

// OutputSchema is the response shape every provider is asked to fill.
// Rates are ad valorem percentages; null marks a rate the provider could not source
const OutputSchema = `{
  "description": "short commodity description",
  "base_rate": {"rate": 2.5, "justification": "source of the MFN rate", "confidence": "high|medium|low"},
  "preferential_rate": {"rate": null, "justification": "agreement and conditions", "confidence": "high|medium|low"},
  "overlays": {
    "<overlay_name>": {"rate": 25, "justification": "legal basis", "confidence": "high|medium|low"}
  },
  "confidence": "high|medium|low"
}`

const systemPrompt = `You are a customs tariff research assistant.
Answer with a single JSON object that follows the requested schema exactly, with no prose and no markdown.
Rates are ad valorem percentages. Use 0 only when the rate is confirmed duty-free.
Use null for any rate you cannot source; never guess a value.
List every policy overlay (trade remedy, emergency or safeguard duty) that applies to the lane.
Use an empty "overlays" object only when you have confirmed none apply.`

// Request is a structured research request, shared by every provider in the chain
type Request struct {
	Code           types.ClassificationCode
	Origin         types.Country
	Destination    types.Country
	ProductContext string
	Policies       []string
}

// Grouped returns the legacy delimited representation of the code
func (r *Request) Grouped() string {
	return r.Code.Grouped()
}

// SystemPrompt returns the provider instructions
func (r *Request) SystemPrompt() string {
	return systemPrompt
}

// UserPrompt returns the query, including the output schema
func (r *Request) UserPrompt() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Classification code: %s (%s)\n", r.Code, r.Grouped())
	fmt.Fprintf(&b, "Origin country: %s\n", r.Origin)
	fmt.Fprintf(&b, "Destination country: %s\n", r.Destination)

	if ctx := strings.TrimSpace(r.ProductContext); ctx != "" {
		fmt.Fprintf(&b, "Product context: %s\n", ctx)
	}

	if len(r.Policies) > 0 {
		fmt.Fprintf(&b, "Policies known to be active on this lane: %s\n", strings.Join(r.Policies, ", "))
	}

	b.WriteString("\nRespond with JSON matching this schema:\n")
	b.WriteString(OutputSchema)

	return b.String()
}
