// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Phase is the coarse stage of a research project. The agent advances the
// phase; the loop only ever moves it back from ANALYSIS to DISCOVERY.
type Phase string

const (
	PhaseDiscovery Phase = "DISCOVERY"
	PhaseAnalysis  Phase = "ANALYSIS"
	PhaseIdeation  Phase = "IDEATION"
	PhaseComplete  Phase = "COMPLETE"
)

// Mission configures blue ocean scoring.
type Mission struct {
	BlueOceanScoring  bool   `json:"blue_ocean_scoring" yaml:"blue_ocean_scoring"`
	MinBlueOceanScore int    `json:"min_blue_ocean_score" yaml:"min_blue_ocean_score"`
	MinCombinedScore  int    `json:"min_combined_score" yaml:"min_combined_score"`
	StrategicFocus    string `json:"strategic_focus,omitempty" yaml:"strategic_focus,omitempty"`
}

// Requirements holds what the research should find.
type Requirements struct {
	// FocusArea is the primary research focus area.
	FocusArea string `json:"focus_area,omitempty" yaml:"focus_area,omitempty"`

	// Keywords are the search keywords handed to the agent.
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`

	// TimeWindowDays is how far back to look for recent papers.
	TimeWindowDays int `json:"time_window_days,omitempty" yaml:"time_window_days,omitempty"`

	// HistoricalLookbackDays is the window for historical context.
	HistoricalLookbackDays int `json:"historical_lookback_days,omitempty" yaml:"historical_lookback_days,omitempty"`

	// TargetPapers is the number of papers to analyze. Always >= 1.
	TargetPapers int `json:"target_papers" yaml:"target_papers"`

	// Sources lists the places the agent may search.
	Sources []string `json:"sources,omitempty" yaml:"sources,omitempty"`

	// MinScoreToPresent is the combined score threshold for presenting a paper.
	MinScoreToPresent int `json:"min_score_to_present,omitempty" yaml:"min_score_to_present,omitempty"`
}

// PhaseTiming records when a phase started and ended. Timestamps are kept as
// the ISO 8601 strings the agent writes.
type PhaseTiming struct {
	StartedAt       string `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	EndedAt         string `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
	DurationSeconds *int   `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
}

// AnalysisTiming extends PhaseTiming with per-paper throughput.
type AnalysisTiming struct {
	PhaseTiming        `yaml:",inline"`
	PapersAnalyzed     int      `json:"papers_analyzed" yaml:"papers_analyzed"`
	AvgSecondsPerPaper *float64 `json:"avg_seconds_per_paper,omitempty" yaml:"avg_seconds_per_paper,omitempty"`
}

// Timing holds research timing metadata.
type Timing struct {
	ResearchStartedAt string         `json:"research_started_at,omitempty" yaml:"research_started_at,omitempty"`
	Discovery         PhaseTiming    `json:"discovery" yaml:"discovery"`
	Analysis          AnalysisTiming `json:"analysis" yaml:"analysis"`
	Ideation          PhaseTiming    `json:"ideation" yaml:"ideation"`
	Complete          PhaseTiming    `json:"complete" yaml:"complete"`
}

// ProductIdeationConfig configures the hand-off to product ideation.
type ProductIdeationConfig struct {
	Enabled            bool           `json:"enabled" yaml:"enabled"`
	MinIdeas           int            `json:"min_ideas,omitempty" yaml:"min_ideas,omitempty"`
	MaxIdeas           int            `json:"max_ideas,omitempty" yaml:"max_ideas,omitempty"`
	OutputFilename     string         `json:"output_filename,omitempty" yaml:"output_filename,omitempty"`
	RankingGoal        string         `json:"ranking_goal,omitempty" yaml:"ranking_goal,omitempty"`
	AssumedConstraints map[string]any `json:"assumed_constraints,omitempty" yaml:"assumed_constraints,omitempty"`
}

// Handoff groups downstream hand-off settings.
type Handoff struct {
	ProductIdeation ProductIdeationConfig `json:"product_ideation" yaml:"product_ideation"`
}

// Insight is a free-form finding extracted from a paper.
type Insight struct {
	ID           string   `json:"id" yaml:"id"`
	PaperID      string   `json:"paper_id" yaml:"paper_id"`
	Insight      string   `json:"insight" yaml:"insight"`
	Tags         []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	CrossRefs    []string `json:"cross_refs,omitempty" yaml:"cross_refs,omitempty"`
	CrossCluster string   `json:"cross_cluster,omitempty" yaml:"cross_cluster,omitempty"`
}

// DomainGlossary holds project-specific terminology.
type DomainGlossary struct {
	Enabled bool              `json:"enabled" yaml:"enabled"`
	Terms   map[string]string `json:"terms,omitempty" yaml:"terms,omitempty"`
}

// DiscoveryMetrics records which sources the agent tried.
type DiscoveryMetrics struct {
	SourcesTried         []string          `json:"sources_tried,omitempty" yaml:"sources_tried,omitempty"`
	SourcesSuccessful    []string          `json:"sources_successful,omitempty" yaml:"sources_successful,omitempty"`
	SourcesBlocked       []string          `json:"sources_blocked,omitempty" yaml:"sources_blocked,omitempty"`
	SourceFailureReasons map[string]string `json:"source_failure_reasons,omitempty" yaml:"source_failure_reasons,omitempty"`
}

// ScoreDistribution buckets combined scores.
type ScoreDistribution struct {
	Range0to17  int `json:"0-17" yaml:"0-17"`
	Range18to24 int `json:"18-24" yaml:"18-24"`
	Range25to34 int `json:"25-34" yaml:"25-34"`
	Range35to50 int `json:"35-50" yaml:"35-50"`
}

// BlueOceanDistribution buckets blue ocean scores.
type BlueOceanDistribution struct {
	Range0to7   int `json:"0-7" yaml:"0-7"`
	Range8to11  int `json:"8-11" yaml:"8-11"`
	Range12to15 int `json:"12-15" yaml:"12-15"`
	Range16to20 int `json:"16-20" yaml:"16-20"`
}

// AnalysisMetrics aggregates scores across analyzed papers.
type AnalysisMetrics struct {
	AvgCombinedScore          float64               `json:"avg_combined_score" yaml:"avg_combined_score"`
	AvgExecutionScore         float64               `json:"avg_execution_score" yaml:"avg_execution_score"`
	AvgBlueOceanScore         float64               `json:"avg_blue_ocean_score" yaml:"avg_blue_ocean_score"`
	CombinedScoreDistribution ScoreDistribution     `json:"combined_score_distribution" yaml:"combined_score_distribution"`
	BlueOceanDistribution     BlueOceanDistribution `json:"blue_ocean_distribution" yaml:"blue_ocean_distribution"`
}

// IdeationMetrics summarizes the ideation phase.
type IdeationMetrics struct {
	ProductIdeasGenerated int    `json:"product_ideas_generated" yaml:"product_ideas_generated"`
	TopIdeaID             string `json:"top_idea_id,omitempty" yaml:"top_idea_id,omitempty"`
}

// Statistics holds the research counters. The agent only ever increases the
// total_* counters; Reset is the one operation that zeroes them.
type Statistics struct {
	TotalDiscovered        int              `json:"total_discovered" yaml:"total_discovered"`
	TotalAnalyzed          int              `json:"total_analyzed" yaml:"total_analyzed"`
	TotalPresented         int              `json:"total_presented" yaml:"total_presented"`
	TotalRejected          int              `json:"total_rejected" yaml:"total_rejected"`
	TotalInsightsExtracted int              `json:"total_insights_extracted" yaml:"total_insights_extracted"`
	DiscoveryMetrics       DiscoveryMetrics `json:"discovery_metrics" yaml:"discovery_metrics"`
	AnalysisMetrics        AnalysisMetrics  `json:"analysis_metrics" yaml:"analysis_metrics"`
	IdeationMetrics        IdeationMetrics  `json:"ideation_metrics" yaml:"ideation_metrics"`
}

// RRD is the Research Requirements Document: the full persisted state of one
// research project, stored as rrd.json in the project directory.
type RRD struct {
	Project     string `json:"project" yaml:"project"`
	BranchName  string `json:"branchName" yaml:"branchName"`
	Description string `json:"description" yaml:"description"`

	Mission        Mission        `json:"mission" yaml:"mission"`
	Requirements   Requirements   `json:"requirements" yaml:"requirements"`
	DomainGlossary DomainGlossary `json:"domain_glossary" yaml:"domain_glossary"`
	OpenQuestions  []string       `json:"open_questions" yaml:"open_questions"`

	Phase   Phase   `json:"phase" yaml:"phase"`
	Timing  Timing  `json:"timing" yaml:"timing"`
	Handoff Handoff `json:"handoff" yaml:"handoff"`

	PapersPool     []Paper    `json:"papers_pool" yaml:"papers_pool"`
	Insights       []Insight  `json:"insights" yaml:"insights"`
	VisitedURLs    []string   `json:"visited_urls" yaml:"visited_urls"`
	BlockedSources []string   `json:"blocked_sources" yaml:"blocked_sources"`
	Statistics     Statistics `json:"statistics" yaml:"statistics"`
}

func (r *RRD) papersWithStatus(statuses ...PaperStatus) []Paper {
	var out []Paper
	for _, p := range r.PapersPool {
		for _, s := range statuses {
			if p.Status == s {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// PendingPapers returns papers waiting for analysis.
func (r *RRD) PendingPapers() []Paper { return r.papersWithStatus(StatusPending) }

// AnalyzingPapers returns papers the agent has started but not finished.
func (r *RRD) AnalyzingPapers() []Paper { return r.papersWithStatus(StatusAnalyzing) }

// AnalyzedPapers returns papers with a final analysis decision.
func (r *RRD) AnalyzedPapers() []Paper {
	return r.papersWithStatus(StatusPresented, StatusRejected, StatusExtractInsights)
}

// PresentedPapers returns papers marked PRESENT.
func (r *RRD) PresentedPapers() []Paper { return r.papersWithStatus(StatusPresented) }

// OutstandingCount returns the number of papers still pending or analyzing.
func (r *RRD) OutstandingCount() int {
	return len(r.PendingPapers()) + len(r.AnalyzingPapers())
}

// CompletionPercentage returns analyzed/target*100, or 0 when target is 0.
func (r *RRD) CompletionPercentage() float64 {
	if r.Requirements.TargetPapers == 0 {
		return 0
	}
	return float64(r.Statistics.TotalAnalyzed) / float64(r.Requirements.TargetPapers) * 100
}

// startedAtLayouts are the timestamp forms agents write for
// research_started_at; the last one has no zone and is read as local time.
var startedAtLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"}

// ResearchStartedAt parses timing.research_started_at. It reports false
// when the timestamp is missing or unreadable.
func (r *RRD) ResearchStartedAt() (time.Time, bool) {
	s := r.Timing.ResearchStartedAt
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range startedAtLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// AnalysisETA estimates the time left in ANALYSIS from
// timing.analysis.avg_seconds_per_paper and the papers still to analyze.
// It reports false outside ANALYSIS, without a throughput figure, or when
// nothing remains.
func (r *RRD) AnalysisETA() (eta time.Duration, remaining int, ok bool) {
	avg := r.Timing.Analysis.AvgSecondsPerPaper
	if r.Phase != PhaseAnalysis || avg == nil || *avg <= 0 {
		return 0, 0, false
	}
	remaining = r.Requirements.TargetPapers - r.Statistics.TotalAnalyzed
	if remaining <= 0 {
		return 0, 0, false
	}
	return time.Duration(float64(remaining) * *avg * float64(time.Second)), remaining, true
}

// Summary is a flat view of an RRD for display.
type Summary struct {
	Project       string  `json:"project" yaml:"project"`
	Phase         Phase   `json:"phase" yaml:"phase"`
	TargetPapers  int     `json:"target_papers" yaml:"target_papers"`
	PoolSize      int     `json:"pool_size" yaml:"pool_size"`
	Analyzed      int     `json:"analyzed" yaml:"analyzed"`
	Presented     int     `json:"presented" yaml:"presented"`
	Rejected      int     `json:"rejected" yaml:"rejected"`
	Pending       int     `json:"pending" yaml:"pending"`
	Analyzing     int     `json:"analyzing" yaml:"analyzing"`
	Insights      int     `json:"insights" yaml:"insights"`
	CompletionPct float64 `json:"completion_pct" yaml:"completion_pct"`
}
