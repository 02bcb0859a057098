package insights

import (
	"testing"

	"github.com/joshdurbin/garmin-wrapped/internal/garmin"
)

func sleepNight(score float64, valid bool, seconds float64) garmin.SleepRecord {
	return garmin.SleepRecord{SleepDTO: garmin.SleepDTO{
		OverallSleepScore: garmin.Score{Value: score, Valid: valid},
		SleepTimeSeconds:  seconds,
		DeepSleepSeconds:  seconds / 4,
		LightSleepSeconds: seconds / 2,
		RemSleepSeconds:   seconds / 5,
		AwakeSleepSeconds: 1800,
	}}
}

func TestSummarizeSleep(t *testing.T) {
	records := []garmin.SleepRecord{
		sleepNight(80, true, 28800), // 8 hrs
		sleepNight(90, true, 21600), // 6 hrs
		sleepNight(0, false, 25200), // 7 hrs, no score
		{},                          // untracked night
	}
	s := SummarizeSleep(records)

	if s.NightsTracked != 3 {
		t.Errorf("NightsTracked = %d, want 3", s.NightsTracked)
	}
	if !almostEqual(s.AvgSleepScore, 85) {
		t.Errorf("AvgSleepScore = %v, want 85", s.AvgSleepScore)
	}
	if !almostEqual(s.AvgSleepHours, 7) {
		t.Errorf("AvgSleepHours = %v, want 7", s.AvgSleepHours)
	}
	if s.BestSleepScore != 90 || s.WorstSleepScore != 80 {
		t.Errorf("best/worst = %v/%v, want 90/80", s.BestSleepScore, s.WorstSleepScore)
	}
	if !almostEqual(s.TotalSleepHours, 21) {
		t.Errorf("TotalSleepHours = %v, want 21", s.TotalSleepHours)
	}
	if !almostEqual(s.LongestSleepHours, 8) {
		t.Errorf("LongestSleepHours = %v, want 8", s.LongestSleepHours)
	}
	if !almostEqual(s.AvgLightSleepHours, 3.5) {
		t.Errorf("AvgLightSleepHours = %v, want 3.5", s.AvgLightSleepHours)
	}
	if !almostEqual(s.AvgAwakeMinutes, 30) {
		t.Errorf("AvgAwakeMinutes = %v, want 30", s.AvgAwakeMinutes)
	}
}

func TestSummarizeSleepEmpty(t *testing.T) {
	s := SummarizeSleep(nil)
	if s.NightsTracked != 0 || s.AvgSleepScore != 0 {
		t.Errorf("empty summary = %+v", s)
	}
}

func TestSummarizeStress(t *testing.T) {
	records := []garmin.StressRecord{
		{AvgStressLevel: 20, MaxStressLevel: 60},
		{AvgStressLevel: 55, MaxStressLevel: 90},
		{AvgStressLevel: 30, MaxStressLevel: 70},
		{AvgStressLevel: -1}, // device off, not tracked
	}
	s := SummarizeStress(records)

	if s.DaysTracked != 3 {
		t.Errorf("DaysTracked = %d, want 3", s.DaysTracked)
	}
	if !almostEqual(s.AvgStressLevel, 35) {
		t.Errorf("AvgStressLevel = %v, want 35", s.AvgStressLevel)
	}
	if s.LowStressDays != 1 || s.HighStressDays != 1 {
		t.Errorf("low/high = %d/%d, want 1/1", s.LowStressDays, s.HighStressDays)
	}
	if s.MaxStressLevel != 90 {
		t.Errorf("MaxStressLevel = %v, want 90", s.MaxStressLevel)
	}
}

func TestSummarizeHeartRate(t *testing.T) {
	records := []garmin.HeartRateRecord{
		{RestingHeartRate: 50, MaxHeartRate: 150},
		{RestingHeartRate: 46, MaxHeartRate: 185},
		{RestingHeartRate: 54, MaxHeartRate: 120},
		{RestingHeartRate: 0}, // missing day
	}
	s := SummarizeHeartRate(records)

	if s.DaysTracked != 3 {
		t.Errorf("DaysTracked = %d, want 3", s.DaysTracked)
	}
	if !almostEqual(s.AvgRestingHR, 50) {
		t.Errorf("AvgRestingHR = %v, want 50", s.AvgRestingHR)
	}
	if s.MinRestingHR != 46 || s.MaxRecordedHR != 185 {
		t.Errorf("min/max = %v/%v", s.MinRestingHR, s.MaxRecordedHR)
	}
}

func TestSummarizeSteps(t *testing.T) {
	records := []garmin.StepsRecord{
		{CalendarDate: "2025-01-01", TotalSteps: 8000},
		{CalendarDate: "2025-01-02", TotalSteps: 12000},
		{CalendarDate: "2025-01-03", TotalSteps: 0},
	}
	s := SummarizeSteps(records)

	if s.DaysTracked != 2 {
		t.Errorf("DaysTracked = %d, want 2", s.DaysTracked)
	}
	if s.TotalSteps != 20000 {
		t.Errorf("TotalSteps = %v, want 20000", s.TotalSteps)
	}
	if s.BestDay != "2025-01-02" || s.BestDaySteps != 12000 {
		t.Errorf("best day = %q/%v", s.BestDay, s.BestDaySteps)
	}
	if s.DaysOver10K != 1 {
		t.Errorf("DaysOver10K = %d, want 1", s.DaysOver10K)
	}
	if !almostEqual(s.AvgDailySteps, 10000) {
		t.Errorf("AvgDailySteps = %v, want 10000", s.AvgDailySteps)
	}
}

func TestSummarizeBodyBattery(t *testing.T) {
	records := []garmin.BodyBatteryRecord{
		{Charged: 60, Drained: -55},
		{Charged: 80, Drained: -70},
		{}, // untracked day
	}
	s := SummarizeBodyBattery(records)

	if s.DaysTracked != 2 {
		t.Errorf("DaysTracked = %d, want 2", s.DaysTracked)
	}
	if !almostEqual(s.AvgCharged, 70) {
		t.Errorf("AvgCharged = %v, want 70", s.AvgCharged)
	}
	// Drain deltas come in negative and are reported as magnitudes
	if !almostEqual(s.AvgDrained, 62.5) {
		t.Errorf("AvgDrained = %v, want 62.5", s.AvgDrained)
	}
	if s.BestRechargeDay != 80 || s.MostDrainingDay != 70 {
		t.Errorf("best/most = %v/%v, want 80/70", s.BestRechargeDay, s.MostDrainingDay)
	}
}

func TestSummarizeVO2Max(t *testing.T) {
	samples := []garmin.VO2MaxSample{
		{Date: "2025-01-01", VO2Max: 48},
		{Date: "2025-06-01", VO2Max: 52},
		{Date: "2025-12-01", VO2Max: 51},
	}
	s := SummarizeVO2Max(samples)

	if s.StartValue != 48 || s.EndValue != 51 {
		t.Errorf("start/end = %v/%v, want 48/51", s.StartValue, s.EndValue)
	}
	if s.PeakValue != 52 || s.LowestValue != 48 {
		t.Errorf("peak/lowest = %v/%v, want 52/48", s.PeakValue, s.LowestValue)
	}
	if !almostEqual(s.AvgValue, 151.0/3) {
		t.Errorf("AvgValue = %v, want %v", s.AvgValue, 151.0/3)
	}
	if !almostEqual(s.Improvement, 3) {
		t.Errorf("Improvement = %v, want 3", s.Improvement)
	}
	if !almostEqual(s.ImprovementPercent, 6.25) {
		t.Errorf("ImprovementPercent = %v, want 6.25", s.ImprovementPercent)
	}
}

func TestSummarizeVO2MaxKeepsSampleOrder(t *testing.T) {
	// Improvement reads the first and last samples as given
	samples := []garmin.VO2MaxSample{
		{Date: "2025-06-01", VO2Max: 52},
		{Date: "2025-01-01", VO2Max: 48},
	}
	s := SummarizeVO2Max(samples)

	if s.StartValue != 52 || s.EndValue != 48 {
		t.Errorf("start/end = %v/%v, want 52/48", s.StartValue, s.EndValue)
	}
	if !almostEqual(s.Improvement, -4) {
		t.Errorf("Improvement = %v, want -4", s.Improvement)
	}
}

func TestSummarizeTrainingStatus(t *testing.T) {
	records := []garmin.TrainingStatusRecord{
		trainingDay("PRODUCTIVE", 400, 380, "feeling good"),
		trainingDay("PRODUCTIVE", 420, 390, "keep it up"),
		trainingDay("RECOVERY", 200, 390, "take it easy"),
		// Chronic-only day must not dilute the acute average
		trainingDay("", 0, 500, ""),
	}
	s := SummarizeTrainingStatus(records)

	if s.DaysTracked != 4 {
		t.Errorf("DaysTracked = %d, want 4", s.DaysTracked)
	}
	if s.MostCommonStatus != "PRODUCTIVE" {
		t.Errorf("MostCommonStatus = %q", s.MostCommonStatus)
	}
	if s.LatestFeedback != "take it easy" {
		t.Errorf("LatestFeedback = %q", s.LatestFeedback)
	}
	if !almostEqual(s.AvgAcuteLoad, 340) {
		t.Errorf("AvgAcuteLoad = %v, want 340", s.AvgAcuteLoad)
	}
	if !almostEqual(s.AvgChronicLoad, 415) {
		t.Errorf("AvgChronicLoad = %v, want 415", s.AvgChronicLoad)
	}
	if s.HighestAcuteLoad != 420 || s.LatestAcuteLoad != 200 {
		t.Errorf("highest/latest acute = %v/%v, want 420/200", s.HighestAcuteLoad, s.LatestAcuteLoad)
	}
	if s.LatestChronicLoad != 500 {
		t.Errorf("LatestChronicLoad = %v, want 500", s.LatestChronicLoad)
	}
}

func trainingDay(status string, acute, chronic float64, feedback string) garmin.TrainingStatusRecord {
	rec := garmin.TrainingStatusRecord{}
	rec.MostRecentTrainingStatus.LatestTrainingStatusData = map[string]garmin.DeviceTrainingStatus{
		"device-1": {
			TrainingStatus:               status,
			TrainingStatusFeedbackPhrase: feedback,
			AcuteTrainingLoadDTO: garmin.AcuteTrainingLoad{
				DailyTrainingLoadAcute:   acute,
				DailyTrainingLoadChronic: chronic,
			},
		},
	}
	return rec
}
