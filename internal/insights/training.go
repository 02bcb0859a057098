package insights

import (
	"github.com/joshdurbin/garmin-wrapped/internal/garmin"
)

// VO2MaxSummary tracks VO2max samples across the year
type VO2MaxSummary struct {
	SamplesTracked     int     `json:"samples_tracked"`
	StartValue         float64 `json:"start_value,omitempty"`
	EndValue           float64 `json:"end_value,omitempty"`
	PeakValue          float64 `json:"peak_value,omitempty"`
	LowestValue        float64 `json:"lowest_value,omitempty"`
	AvgValue           float64 `json:"avg_value,omitempty"`
	Improvement        float64 `json:"improvement,omitempty"`
	ImprovementPercent float64 `json:"improvement_percent,omitempty"`
}

// TrainingSummary aggregates daily training status records
type TrainingSummary struct {
	DaysTracked       int            `json:"days_tracked"`
	AvgAcuteLoad      float64        `json:"avg_acute_load,omitempty"`
	HighestAcuteLoad  float64        `json:"highest_acute_load,omitempty"`
	LatestAcuteLoad   float64        `json:"latest_acute_load,omitempty"`
	AvgChronicLoad    float64        `json:"avg_chronic_load,omitempty"`
	LatestChronicLoad float64        `json:"latest_chronic_load,omitempty"`
	StatusCounts      map[string]int `json:"status_counts,omitempty"`
	MostCommonStatus  string         `json:"most_common_status,omitempty"`
	LatestFeedback    string         `json:"latest_feedback,omitempty"`
}

// SummarizeVO2Max computes start, end, peak, lowest, average, and the
// first-to-last improvement. Samples are taken in the order given.
func SummarizeVO2Max(samples []garmin.VO2MaxSample) *VO2MaxSummary {
	s := &VO2MaxSummary{SamplesTracked: len(samples)}
	if len(samples) == 0 {
		return s
	}

	s.StartValue = samples[0].VO2Max
	s.EndValue = samples[len(samples)-1].VO2Max
	var sum float64
	for _, sample := range samples {
		sum += sample.VO2Max
		if sample.VO2Max > s.PeakValue {
			s.PeakValue = sample.VO2Max
		}
		if s.LowestValue == 0 || sample.VO2Max < s.LowestValue {
			s.LowestValue = sample.VO2Max
		}
	}
	s.AvgValue = sum / float64(len(samples))
	s.Improvement = s.EndValue - s.StartValue
	if s.StartValue > 0 {
		s.ImprovementPercent = s.Improvement / s.StartValue * 100
	}
	return s
}

// SummarizeTrainingStatus aggregates load numbers and status labels across
// all devices reporting per day.
func SummarizeTrainingStatus(records []garmin.TrainingStatusRecord) *TrainingSummary {
	s := &TrainingSummary{StatusCounts: map[string]int{}}

	var acuteSum, chronicSum float64
	var acuteCount, chronicCount int

	for _, rec := range records {
		counted := false
		for _, device := range rec.MostRecentTrainingStatus.LatestTrainingStatusData {
			if device.TrainingStatus != "" {
				s.StatusCounts[device.TrainingStatus]++
			}
			if device.TrainingStatusFeedbackPhrase != "" {
				s.LatestFeedback = device.TrainingStatusFeedbackPhrase
			}
			load := device.AcuteTrainingLoadDTO
			if load.DailyTrainingLoadAcute > 0 {
				acuteSum += load.DailyTrainingLoadAcute
				acuteCount++
				s.LatestAcuteLoad = load.DailyTrainingLoadAcute
				if load.DailyTrainingLoadAcute > s.HighestAcuteLoad {
					s.HighestAcuteLoad = load.DailyTrainingLoadAcute
				}
			}
			if load.DailyTrainingLoadChronic > 0 {
				chronicSum += load.DailyTrainingLoadChronic
				chronicCount++
				s.LatestChronicLoad = load.DailyTrainingLoadChronic
			}
			counted = true
		}
		if counted {
			s.DaysTracked++
		}
	}

	if acuteCount > 0 {
		s.AvgAcuteLoad = acuteSum / float64(acuteCount)
	}
	if chronicCount > 0 {
		s.AvgChronicLoad = chronicSum / float64(chronicCount)
	}
	s.MostCommonStatus = mostCommonType(s.StatusCounts)
	return s
}
