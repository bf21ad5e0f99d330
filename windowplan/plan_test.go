package windowplan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve.evalgo.org/otelscrape/config"
)

func TestPlanInstant(t *testing.T) {
	src := config.Source{Mode: "instant", ExtraArgs: map[string]string{"k": "v"}}
	p, err := Plan(src, time.Now(), time.Time{}, false, true, false, "%s")
	require.NoError(t, err)
	require.Len(t, p.Units, 1)
	assert.False(t, p.Units[0].HasWindow)
	assert.Equal(t, "v", p.Units[0].Query["k"])
}

// TestPlanExplicitBackfill covers spec scenario 2: firstScrapeStart +
// 1h frequency + 1h parallel window, now = start+3h yields three
// consecutive hourly units and advances last-success to now.
func TestPlanExplicitBackfill(t *testing.T) {
	start, _ := time.Parse(time.RFC3339, "2025-01-01T00:00:00Z")
	now := start.Add(3 * time.Hour)

	src := config.Source{
		Mode:      "range",
		Frequency: "1h",
		RangeKeys: config.RangeKeysConfig{
			Kind:             "explicit",
			StartKey:         "startDate",
			EndKey:           "endDate",
			FirstScrapeStart: "2025-01-01T00:00:00Z",
		},
		ParallelWindow: config.ParallelWindowConfig{Unit: "hours", Value: 1},
		TimeFormat:     time.RFC3339,
	}

	p, err := Plan(src, now, time.Time{}, false, true, false, time.RFC3339)
	require.NoError(t, err)
	require.Len(t, p.Units, 3)
	assert.True(t, p.AdvancesLastSuccess)
	assert.Equal(t, now, p.OuterEnd)
	assert.Equal(t, start, p.Units[0].Start)
	assert.Equal(t, start.Add(time.Hour), p.Units[0].End)
	assert.Equal(t, start.Add(2*time.Hour), p.Units[2].Start)
	assert.Equal(t, now, p.Units[2].End)
}

func TestPlanExplicitSkippedOnOverlap(t *testing.T) {
	src := config.Source{
		Mode: "range",
		RangeKeys: config.RangeKeysConfig{
			Kind: "explicit", StartKey: "s", EndKey: "e",
		},
		Frequency: "1h",
	}
	p, err := Plan(src, time.Now(), time.Time{}, false, false, true, "%s")
	require.NoError(t, err)
	assert.True(t, p.Skip)
	assert.Empty(t, p.Units)
}

func TestPlanExplicitUsesLastSuccess(t *testing.T) {
	last := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := last.Add(30 * time.Minute)
	src := config.Source{
		Mode:      "range",
		Frequency: "1h",
		RangeKeys: config.RangeKeysConfig{Kind: "explicit", StartKey: "s", EndKey: "e"},
		TimeFormat: "%s",
	}
	p, err := Plan(src, now, last, true, true, false, "%s")
	require.NoError(t, err)
	require.Len(t, p.Units, 1)
	assert.Equal(t, last, p.Units[0].Start)
	assert.Equal(t, now, p.Units[0].End)
}

func TestPlanRelativeFromConfig(t *testing.T) {
	src := config.Source{
		Mode:      "range",
		Frequency: "2d",
		RangeKeys: config.RangeKeysConfig{
			Kind:          "relative",
			RelativeUnit:  "days",
			RelativeValue: "from-config",
		},
	}
	p, err := Plan(src, time.Now(), time.Time{}, false, true, false, "%s")
	require.NoError(t, err)
	require.Len(t, p.Units, 1)
	assert.Equal(t, "2", p.Units[0].Query["days"])
}

func TestPlanRelativeTakeNegative(t *testing.T) {
	src := config.Source{
		Mode: "range",
		RangeKeys: config.RangeKeysConfig{
			Kind:                 "relative",
			RelativeUnit:         "days",
			RelativeValue:        "5",
			RelativeTakeNegative: true,
		},
	}
	p, err := Plan(src, time.Now(), time.Time{}, false, true, false, "%s")
	require.NoError(t, err)
	assert.Equal(t, "-5", p.Units[0].Query["days"])
}
