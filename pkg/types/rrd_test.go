// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func floatPtr(f float64) *float64 { return &f }

func TestScoreBreakdown(t *testing.T) {
	s := ScoreBreakdown{
		Novelty: 5, Feasibility: 4, TimeToPOC: 3, ValueMarket: 4, Defensibility: 2, Adoption: 3,
		MarketCreation: 4, FirstMoverWindow: 3, NetworkDataEffects: 2, StrategicClarity: 5,
	}
	assert.Equal(t, 21, s.ExecutionScore())
	assert.Equal(t, 14, s.BlueOceanScore())
	assert.Equal(t, 35, s.CombinedScore())
	assert.Equal(t, 0, ScoreBreakdown{}.CombinedScore())
}

func TestPapersByStatus(t *testing.T) {
	doc := &RRD{PapersPool: []Paper{
		{ID: "a", Status: StatusPending},
		{ID: "b", Status: StatusAnalyzing},
		{ID: "c", Status: StatusPresented},
		{ID: "d", Status: StatusRejected},
		{ID: "e", Status: StatusExtractInsights},
		{ID: "f", Status: StatusInsightsExtracted},
		{ID: "g", Status: StatusPresented},
	}}

	ids := func(papers []Paper) []string {
		var out []string
		for _, p := range papers {
			out = append(out, p.ID)
		}
		return out
	}
	assert.Equal(t, []string{"a"}, ids(doc.PendingPapers()))
	assert.Equal(t, []string{"b"}, ids(doc.AnalyzingPapers()))
	assert.Equal(t, []string{"c", "d", "e", "g"}, ids(doc.AnalyzedPapers()))
	assert.Equal(t, []string{"c", "g"}, ids(doc.PresentedPapers()))
	assert.Equal(t, 2, doc.OutstandingCount())
}

func TestCompletionPercentage(t *testing.T) {
	doc := &RRD{Requirements: Requirements{TargetPapers: 8}, Statistics: Statistics{TotalAnalyzed: 2}}
	assert.InDelta(t, 25.0, doc.CompletionPercentage(), 0.001)

	assert.Zero(t, (&RRD{}).CompletionPercentage())
}

func TestRankPapers(t *testing.T) {
	papers := []Paper{
		{ID: "unscored", Status: StatusPresented},
		{ID: "stored", Status: StatusRejected, Score: intPtr(20)},
		{ID: "breakdown", Status: StatusPresented, Score: intPtr(1), ScoreBreakdown: &ScoreBreakdown{
			Novelty: 5, Feasibility: 5, TimeToPOC: 5, ValueMarket: 5, Defensibility: 5, Adoption: 5,
			MarketCreation: 3, FirstMoverWindow: 3, NetworkDataEffects: 3, StrategicClarity: 3,
		}},
		{ID: "tie", Status: StatusPresented, Score: intPtr(20)},
	}

	ranked := RankPapers(papers)
	require.Len(t, ranked, 3)

	assert.Equal(t, "breakdown", ranked[0].ID)
	assert.Equal(t, 42, ranked[0].Combined)
	assert.Equal(t, 30, ranked[0].Execution)
	assert.Equal(t, 12, ranked[0].BlueOcean)
	assert.True(t, ranked[0].HasBreakdown)

	// Equal scores keep pool order.
	assert.Equal(t, "stored", ranked[1].ID)
	assert.Equal(t, "tie", ranked[2].ID)
	assert.False(t, ranked[1].HasBreakdown)

	assert.Empty(t, RankPapers(nil))
}

func TestResearchStartedAt(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Time
		ok    bool
	}{
		{"missing", "", time.Time{}, false},
		{"rfc3339 utc", "2026-01-05T09:00:00Z", time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), true},
		{"offset", "2026-01-05T10:00:00+01:00", time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), true},
		{"no zone", "2026-01-05T09:00:00.250000", time.Date(2026, 1, 5, 9, 0, 0, 250_000_000, time.Local), true},
		{"garbage", "last tuesday", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &RRD{Timing: Timing{ResearchStartedAt: tt.value}}
			got, ok := doc.ResearchStartedAt()
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAnalysisETA(t *testing.T) {
	analysis := func(avg *float64, analyzed int) *RRD {
		doc := &RRD{
			Phase:        PhaseAnalysis,
			Requirements: Requirements{TargetPapers: 10},
			Statistics:   Statistics{TotalAnalyzed: analyzed},
		}
		doc.Timing.Analysis.AvgSecondsPerPaper = avg
		return doc
	}

	eta, remaining, ok := analysis(floatPtr(90), 4).AnalysisETA()
	require.True(t, ok)
	assert.Equal(t, 6, remaining)
	assert.Equal(t, 9*time.Minute, eta)

	_, _, ok = analysis(nil, 4).AnalysisETA()
	assert.False(t, ok, "no throughput")

	_, _, ok = analysis(floatPtr(0), 4).AnalysisETA()
	assert.False(t, ok, "zero throughput")

	_, _, ok = analysis(floatPtr(90), 10).AnalysisETA()
	assert.False(t, ok, "nothing remaining")

	discovery := analysis(floatPtr(90), 4)
	discovery.Phase = PhaseDiscovery
	_, _, ok = discovery.AnalysisETA()
	assert.False(t, ok, "outside ANALYSIS")
}
