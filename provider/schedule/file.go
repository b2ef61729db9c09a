// Package schedule contains ingest feeds for authoritative rate schedules
package schedule

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/sig-0/dutyrates/research"
	"github.com/sig-0/dutyrates/storage/types"
)

var errEmptySchedule = errors.New("schedule contains no rates")

// DefaultInterval is the reload interval of schedule feeds
const DefaultInterval = 24 * time.Hour

// fileSchedule is the TOML schedule layout
type fileSchedule struct {
	// Optional lane defaults, applied to rows that omit them
	Origin      string `toml:"origin"`
	Destination string `toml:"destination"`

	Rates []fileRow `toml:"rates"`
}

type fileRow struct {
	Code          string `toml:"code"`
	Origin        string `toml:"origin"`
	Destination   string `toml:"destination"`
	BaseRate      string `toml:"base_rate"`
	Preferential  string `toml:"preferential_rate"`
	Description   string `toml:"description"`
	Justification string `toml:"justification"`
}

// FileFeed loads a TOML rate schedule from disk
type FileFeed struct {
	path     string
	interval time.Duration
}

// NewFileFeed creates a new file schedule feed
func NewFileFeed(path string, interval time.Duration) *FileFeed {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &FileFeed{
		path:     path,
		interval: interval,
	}
}

func (f *FileFeed) Name() string {
	return "file:" + f.path
}

func (f *FileFeed) Interval() time.Duration {
	return f.interval
}

// Fetch reads and parses the schedule file
func (f *FileFeed) Fetch(_ context.Context) ([]*types.Fragment, error) {
	content, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("unable to read schedule file: %w", err)
	}

	return ParseFile(content, time.Now().UTC())
}

// ParseFile parses a TOML schedule. Rates are textual ("2.5%", "Free", "");
// a blank or unparseable rate is Unknown, never zero
func ParseFile(content []byte, verifiedAt time.Time) ([]*types.Fragment, error) {
	var schedule fileSchedule

	if err := toml.Unmarshal(content, &schedule); err != nil {
		return nil, fmt.Errorf("unable to parse schedule file: %w", err)
	}

	if len(schedule.Rates) == 0 {
		return nil, errEmptySchedule
	}

	fragments := make([]*types.Fragment, 0, len(schedule.Rates))

	for _, row := range schedule.Rates {
		fragments = append(fragments, &types.Fragment{
			Key: types.Key{
				Code:        row.Code,
				Origin:      types.Country(firstNonEmpty(row.Origin, schedule.Origin)),
				Destination: types.Country(firstNonEmpty(row.Destination, schedule.Destination)),
				Class:       types.FieldClassStable,
			},
			BaseRate:         research.ParseRateText(row.BaseRate),
			PreferentialRate: research.ParseRateText(row.Preferential),
			Source:           types.SourceExact,
			Confidence:       types.CeilingExact,
			Description:      strings.TrimSpace(row.Description),
			Justification:    strings.TrimSpace(row.Justification),
			VerifiedAt:       verifiedAt,
		})
	}

	return fragments, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}

	return ""
}
