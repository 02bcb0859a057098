package insights

import (
	"github.com/joshdurbin/garmin-wrapped/internal/garmin"
)

// SleepSummary aggregates a year of nightly sleep records
type SleepSummary struct {
	NightsTracked      int     `json:"nights_tracked"`
	AvgSleepScore      float64 `json:"avg_sleep_score,omitempty"`
	BestSleepScore     float64 `json:"best_sleep_score,omitempty"`
	WorstSleepScore    float64 `json:"worst_sleep_score,omitempty"`
	AvgSleepHours      float64 `json:"avg_sleep_hours,omitempty"`
	TotalSleepHours    float64 `json:"total_sleep_hours,omitempty"`
	LongestSleepHours  float64 `json:"longest_sleep_hours,omitempty"`
	AvgDeepSleepHours  float64 `json:"avg_deep_sleep_hours,omitempty"`
	AvgLightSleepHours float64 `json:"avg_light_sleep_hours,omitempty"`
	AvgRemSleepHours   float64 `json:"avg_rem_sleep_hours,omitempty"`
	AvgAwakeMinutes    float64 `json:"avg_awake_minutes,omitempty"`
}

// StressSummary aggregates daily stress levels
type StressSummary struct {
	DaysTracked    int     `json:"days_tracked"`
	AvgStressLevel float64 `json:"avg_stress_level,omitempty"`
	MaxStressLevel float64 `json:"max_stress_level,omitempty"`
	LowStressDays  int     `json:"low_stress_days"`
	HighStressDays int     `json:"high_stress_days"`
}

// HeartSummary aggregates daily resting and max heart rates
type HeartSummary struct {
	DaysTracked   int     `json:"days_tracked"`
	AvgRestingHR  float64 `json:"avg_resting_hr,omitempty"`
	MinRestingHR  float64 `json:"min_resting_hr,omitempty"`
	MaxRecordedHR float64 `json:"max_recorded_hr,omitempty"`
}

// BodyBatterySummary aggregates daily charge and drain totals. Drain values
// arrive negative from the API and are summarized as magnitudes.
type BodyBatterySummary struct {
	DaysTracked     int     `json:"days_tracked"`
	AvgCharged      float64 `json:"avg_charged,omitempty"`
	AvgDrained      float64 `json:"avg_drained,omitempty"`
	BestRechargeDay float64 `json:"best_recharge_day,omitempty"`
	MostDrainingDay float64 `json:"most_draining_day,omitempty"`
}

// StepsSummary aggregates daily step totals
type StepsSummary struct {
	DaysTracked   int     `json:"days_tracked"`
	TotalSteps    int     `json:"total_steps"`
	AvgDailySteps float64 `json:"avg_daily_steps,omitempty"`
	BestDay       string  `json:"best_day,omitempty"`
	BestDaySteps  int     `json:"best_day_steps,omitempty"`
	DaysOver10K   int     `json:"days_over_10k"`
}

// SummarizeSleep averages nightly sleep metrics. Nights without an overall
// score still contribute to duration averages.
func SummarizeSleep(records []garmin.SleepRecord) *SleepSummary {
	s := &SleepSummary{}
	if len(records) == 0 {
		return s
	}

	var scoreSum float64
	var scoreCount int
	var sleepSum, deepSum, lightSum, remSum, awakeSum float64
	var durCount int

	for _, r := range records {
		if r.OverallSleepScore.Valid {
			score := r.OverallSleepScore.Value
			scoreSum += score
			scoreCount++
			if score > s.BestSleepScore {
				s.BestSleepScore = score
			}
			if s.WorstSleepScore == 0 || score < s.WorstSleepScore {
				s.WorstSleepScore = score
			}
		}
		if r.SleepTimeSeconds > 0 {
			hours := r.SleepTimeSeconds / 3600
			sleepSum += hours
			if hours > s.LongestSleepHours {
				s.LongestSleepHours = hours
			}
			deepSum += r.DeepSleepSeconds
			lightSum += r.LightSleepSeconds
			remSum += r.RemSleepSeconds
			awakeSum += r.AwakeSleepSeconds
			durCount++
		}
	}

	s.NightsTracked = durCount
	if scoreCount > 0 {
		s.AvgSleepScore = scoreSum / float64(scoreCount)
	}
	if durCount > 0 {
		n := float64(durCount)
		s.AvgSleepHours = sleepSum / n
		s.TotalSleepHours = sleepSum
		s.AvgDeepSleepHours = deepSum / n / 3600
		s.AvgLightSleepHours = lightSum / n / 3600
		s.AvgRemSleepHours = remSum / n / 3600
		s.AvgAwakeMinutes = awakeSum / n / 60
	}
	return s
}

// Stress level thresholds per the Garmin scale (0-100)
const (
	lowStressCeiling = 25
	highStressFloor  = 50
)

// SummarizeStress averages daily stress and counts low/high stress days
func SummarizeStress(records []garmin.StressRecord) *StressSummary {
	s := &StressSummary{}

	var sum float64
	for _, r := range records {
		if r.AvgStressLevel <= 0 {
			continue
		}
		s.DaysTracked++
		sum += r.AvgStressLevel
		if r.MaxStressLevel > s.MaxStressLevel {
			s.MaxStressLevel = r.MaxStressLevel
		}
		if r.AvgStressLevel < lowStressCeiling {
			s.LowStressDays++
		} else if r.AvgStressLevel >= highStressFloor {
			s.HighStressDays++
		}
	}
	if s.DaysTracked > 0 {
		s.AvgStressLevel = sum / float64(s.DaysTracked)
	}
	return s
}

// SummarizeHeartRate averages resting heart rate and tracks extremes
func SummarizeHeartRate(records []garmin.HeartRateRecord) *HeartSummary {
	s := &HeartSummary{}

	var restingSum float64
	for _, r := range records {
		if r.RestingHeartRate <= 0 {
			continue
		}
		s.DaysTracked++
		restingSum += r.RestingHeartRate
		if s.MinRestingHR == 0 || r.RestingHeartRate < s.MinRestingHR {
			s.MinRestingHR = r.RestingHeartRate
		}
		if r.MaxHeartRate > s.MaxRecordedHR {
			s.MaxRecordedHR = r.MaxHeartRate
		}
	}
	if s.DaysTracked > 0 {
		s.AvgRestingHR = restingSum / float64(s.DaysTracked)
	}
	return s
}

// SummarizeBodyBattery averages daily charge and drain. The API reports
// drain as a negative delta, so magnitudes are taken before aggregating.
func SummarizeBodyBattery(records []garmin.BodyBatteryRecord) *BodyBatterySummary {
	s := &BodyBatterySummary{}

	var chargedSum, drainedSum float64
	for _, r := range records {
		if r.Charged == 0 && r.Drained == 0 {
			continue
		}
		drained := r.Drained
		if drained < 0 {
			drained = -drained
		}
		s.DaysTracked++
		chargedSum += r.Charged
		drainedSum += drained
		if r.Charged > s.BestRechargeDay {
			s.BestRechargeDay = r.Charged
		}
		if drained > s.MostDrainingDay {
			s.MostDrainingDay = drained
		}
	}
	if s.DaysTracked > 0 {
		s.AvgCharged = chargedSum / float64(s.DaysTracked)
		s.AvgDrained = drainedSum / float64(s.DaysTracked)
	}
	return s
}

// SummarizeSteps totals and averages daily steps, tracking the best day
// and the count of days at or above ten thousand
func SummarizeSteps(records []garmin.StepsRecord) *StepsSummary {
	s := &StepsSummary{}

	for _, r := range records {
		if r.TotalSteps <= 0 {
			continue
		}
		s.DaysTracked++
		s.TotalSteps += r.TotalSteps
		if r.TotalSteps >= 10000 {
			s.DaysOver10K++
		}
		if r.TotalSteps > s.BestDaySteps {
			s.BestDaySteps = r.TotalSteps
			s.BestDay = r.CalendarDate
		}
	}
	if s.DaysTracked > 0 {
		s.AvgDailySteps = float64(s.TotalSteps) / float64(s.DaysTracked)
	}
	return s
}
