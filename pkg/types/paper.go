// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "sort"

// PaperStatus is the position of a paper in the research pipeline.
// The agent moves papers between statuses; the loop only counts them.
type PaperStatus string

const (
	StatusPending           PaperStatus = "pending"
	StatusAnalyzing         PaperStatus = "analyzing"
	StatusPresented         PaperStatus = "presented"
	StatusRejected          PaperStatus = "rejected"
	StatusExtractInsights   PaperStatus = "extract_insights"
	StatusInsightsExtracted PaperStatus = "insights_extracted"
)

// ScoreBreakdown holds the per-criterion scores (each 0-5) the agent assigns
// during analysis. The first six criteria form the execution rubric (0-30),
// the last four the blue ocean rubric (0-20).
type ScoreBreakdown struct {
	Novelty       int `json:"novelty" yaml:"novelty"`
	Feasibility   int `json:"feasibility" yaml:"feasibility"`
	TimeToPOC     int `json:"time_to_poc" yaml:"time_to_poc"`
	ValueMarket   int `json:"value_market" yaml:"value_market"`
	Defensibility int `json:"defensibility" yaml:"defensibility"`
	Adoption      int `json:"adoption" yaml:"adoption"`

	MarketCreation     int `json:"market_creation" yaml:"market_creation"`
	FirstMoverWindow   int `json:"first_mover_window" yaml:"first_mover_window"`
	NetworkDataEffects int `json:"network_data_effects" yaml:"network_data_effects"`
	StrategicClarity   int `json:"strategic_clarity" yaml:"strategic_clarity"`
}

// ExecutionScore returns the execution rubric total (0-30).
func (s ScoreBreakdown) ExecutionScore() int {
	return s.Novelty + s.Feasibility + s.TimeToPOC + s.ValueMarket + s.Defensibility + s.Adoption
}

// BlueOceanScore returns the blue ocean rubric total (0-20).
func (s ScoreBreakdown) BlueOceanScore() int {
	return s.MarketCreation + s.FirstMoverWindow + s.NetworkDataEffects + s.StrategicClarity
}

// CombinedScore returns the sum of both rubrics (0-50).
func (s ScoreBreakdown) CombinedScore() int {
	return s.ExecutionScore() + s.BlueOceanScore()
}

// Paper is one tracked item in the research pool.
type Paper struct {
	// ID is a unique identifier (e.g. "arxiv_2501.12345").
	ID string `json:"id" yaml:"id"`

	// Title is the paper title.
	Title string `json:"title" yaml:"title"`

	// URL is the landing page of the paper.
	URL string `json:"url" yaml:"url"`

	// PDFURL is a direct link to the PDF, when known.
	PDFURL string `json:"pdf_url,omitempty" yaml:"pdf_url,omitempty"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Date is the publication date as written by the agent (usually YYYY-MM-DD).
	Date string `json:"date,omitempty" yaml:"date,omitempty"`

	// Source names where the paper was discovered (arXiv, Google Scholar, web).
	Source string `json:"source,omitempty" yaml:"source,omitempty"`

	// Priority is the discovery priority (1-5).
	Priority int `json:"priority,omitempty" yaml:"priority,omitempty"`

	// Status is the current pipeline status.
	Status PaperStatus `json:"status" yaml:"status"`

	// Score is the combined score (0-50), set once analyzed.
	Score *int `json:"score,omitempty" yaml:"score,omitempty"`

	ScoreBreakdown *ScoreBreakdown `json:"score_breakdown,omitempty" yaml:"score_breakdown,omitempty"`

	// Analysis is either a free-text summary or a structured object.
	Analysis any `json:"analysis,omitempty" yaml:"analysis,omitempty"`

	// Decision is PRESENT, REJECT or EXTRACT_INSIGHTS.
	Decision string `json:"decision,omitempty" yaml:"decision,omitempty"`

	Notes             string `json:"notes,omitempty" yaml:"notes,omitempty"`
	ImplementationURL string `json:"implementation_url,omitempty" yaml:"implementation_url,omitempty"`
	Commercialized    *bool  `json:"commercialized,omitempty" yaml:"commercialized,omitempty"`
}

// RankedPaper is a scored paper prepared for display.
type RankedPaper struct {
	ID     string      `json:"id" yaml:"id"`
	Title  string      `json:"title" yaml:"title"`
	Status PaperStatus `json:"status" yaml:"status"`

	Combined int `json:"combined" yaml:"combined"`

	// Execution and BlueOcean are only meaningful when HasBreakdown is set.
	Execution    int  `json:"execution" yaml:"execution"`
	BlueOcean    int  `json:"blue_ocean" yaml:"blue_ocean"`
	HasBreakdown bool `json:"has_breakdown" yaml:"has_breakdown"`
}

// RankPapers returns the papers that carry a score, highest combined score
// first. A score breakdown takes precedence over the stored score.
func RankPapers(papers []Paper) []RankedPaper {
	var out []RankedPaper
	for _, p := range papers {
		rp := RankedPaper{ID: p.ID, Title: p.Title, Status: p.Status}
		switch {
		case p.ScoreBreakdown != nil:
			rp.Combined = p.ScoreBreakdown.CombinedScore()
			rp.Execution = p.ScoreBreakdown.ExecutionScore()
			rp.BlueOcean = p.ScoreBreakdown.BlueOceanScore()
			rp.HasBreakdown = true
		case p.Score != nil:
			rp.Combined = *p.Score
		default:
			continue
		}
		out = append(out, rp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Combined > out[j].Combined })
	return out
}
