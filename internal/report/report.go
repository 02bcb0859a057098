// Package report orchestrates fetching a year of Garmin data and
// assembling it into a wrapped report.
package report

import (
	"time"

	"github.com/joshdurbin/garmin-wrapped/internal/insights"
)

// YearlyReport is the assembled year-in-review for one account.
// Sections that failed to fetch are present but empty, and named in
// Failures, so a partial report still renders.
type YearlyReport struct {
	Year          int       `json:"year"`
	GeneratedAt   time.Time `json:"generated_at"`
	ActivityTypes []string  `json:"activity_types"`

	Activities  *insights.ActivitySummary            `json:"activities"`
	ByType      map[string]*insights.ActivitySummary `json:"by_type,omitempty"`
	Sleep       *insights.SleepSummary               `json:"sleep"`
	Stress      *insights.StressSummary              `json:"stress"`
	HeartRate   *insights.HeartSummary               `json:"heart_rate"`
	BodyBattery *insights.BodyBatterySummary         `json:"body_battery"`
	Steps       *insights.StepsSummary               `json:"steps"`
	VO2Max      *insights.VO2MaxSummary              `json:"vo2max"`
	Training    *insights.TrainingSummary            `json:"training"`

	AllTimeRecords map[string]*insights.AllTimeRecord `json:"all_time_records,omitempty"`
	AllTimeBests   map[string]bool                    `json:"all_time_bests,omitempty"`

	Failures []string `json:"failures,omitempty"`
}

// Progress reports orchestration milestones to the caller
type Progress struct {
	Stage     string `json:"stage"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// ProgressFunc receives progress updates during generation. It must not
// block: slow consumers are skipped, not waited on.
type ProgressFunc func(Progress)
