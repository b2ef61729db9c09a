package schedule

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sig-0/dutyrates/research"
	"github.com/sig-0/dutyrates/storage/types"
)

var (
	errNoOrigins = errors.New("no origins configured")
	errNoRows    = errors.New("no schedule rows found")
)

// Columns maps the schedule table's columns (0-based). A negative index means absent
type Columns struct {
	Code         int
	Description  int
	BaseRate     int
	Preferential int
}

// DefaultColumns is the common "code | description | general | special" layout
func DefaultColumns() Columns {
	return Columns{
		Code:         0,
		Description:  1,
		BaseRate:     2,
		Preferential: 3,
	}
}

// HTMLFeed scrapes an HTML tariff schedule table.
// Every row yields one fragment per configured origin
type HTMLFeed struct {
	client      *http.Client
	url         string
	selector    string
	origins     []types.Country
	destination types.Country
	columns     Columns
	interval    time.Duration
}

type HTMLOption func(*HTMLFeed)

// WithSelector overrides the row selector (defaults to "table tr")
func WithSelector(selector string) HTMLOption {
	return func(f *HTMLFeed) {
		f.selector = selector
	}
}

// WithColumns overrides the column layout
func WithColumns(c Columns) HTMLOption {
	return func(f *HTMLFeed) {
		f.columns = c
	}
}

// WithInterval overrides the reload interval
func WithInterval(d time.Duration) HTMLOption {
	return func(f *HTMLFeed) {
		if d > 0 {
			f.interval = d
		}
	}
}

// NewHTMLFeed creates a new HTML schedule feed
func NewHTMLFeed(
	url string,
	destination types.Country,
	origins []types.Country,
	timeout time.Duration,
	opts ...HTMLOption,
) *HTMLFeed {
	f := &HTMLFeed{
		client: &http.Client{
			Timeout: timeout,
		},
		url:         url,
		selector:    "table tr",
		origins:     origins,
		destination: destination,
		columns:     DefaultColumns(),
		interval:    DefaultInterval,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

func (f *HTMLFeed) Name() string {
	return "html:" + f.url
}

func (f *HTMLFeed) Interval() time.Duration {
	return f.interval
}

func (f *HTMLFeed) Fetch(ctx context.Context) ([]*types.Fragment, error) {
	if len(f.origins) == 0 {
		return nil, errNoOrigins
	}

	// Prepare the request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("unable to create new GET request: %w", err)
	}

	// Execute the request
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to execute GET request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("invalid status code received: %d", resp.StatusCode)
	}

	// Construct document for parsing
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to construct query doc: %w", err)
	}

	var (
		fetchTime = time.Now().UTC()
		fragments = make([]*types.Fragment, 0)
	)

	doc.Find(f.selector).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return // header row
		}

		cell := func(idx int) string {
			if idx < 0 || idx >= cells.Length() {
				return ""
			}

			return strings.TrimSpace(cells.Eq(idx).Text())
		}

		code := cell(f.columns.Code)
		if _, err := types.ParseCode(code); err != nil {
			return // section headings and footnotes
		}

		var (
			base         = research.ParseRateText(rateText(cell(f.columns.BaseRate)))
			preferential = research.ParseRateText(rateText(cell(f.columns.Preferential)))
			description  = cell(f.columns.Description)
		)

		for _, origin := range f.origins {
			fragments = append(fragments, &types.Fragment{
				Key: types.Key{
					Code:        code,
					Origin:      origin,
					Destination: f.destination,
					Class:       types.FieldClassStable,
				},
				BaseRate:         base,
				PreferentialRate: preferential,
				Source:           types.SourceExact,
				Confidence:       types.CeilingExact,
				Description:      description,
				VerifiedAt:       fetchTime,
			})
		}
	})

	if len(fragments) == 0 {
		return nil, errNoRows
	}

	return fragments, nil
}

// rateText drops the trailing program list of a rate cell ("Free (A,AU,BH)" -> "Free")
func rateText(s string) string {
	if i := strings.Index(s, "("); i != -1 {
		s = s[:i]
	}

	return strings.TrimSpace(s)
}
