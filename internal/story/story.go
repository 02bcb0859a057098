// Package story renders a yearly report into the ordered sequence of
// display cards the frontend steps through.
package story

import (
	"fmt"
	"sort"

	"github.com/joshdurbin/garmin-wrapped/internal/insights"
	"github.com/joshdurbin/garmin-wrapped/internal/report"
)

// Unit systems for distance display
const (
	UnitKM = "km"
	UnitMI = "mi"
)

// Unit conversion factors
const (
	kmToMiles   = 0.621371
	paceKMPerMI = 1.60934
)

// Stat is one labeled value on a card
type Stat struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Sub   string `json:"sub,omitempty"`
}

// RecordStat is one race PR entry, flagged when it is a lifetime best
type RecordStat struct {
	Distance string `json:"distance"`
	Time     string `json:"time"`
	Pace     string `json:"pace"`
	Date     string `json:"date"`
	AllTime  bool   `json:"all_time"`
}

// MonthCell is one bar of the monthly activity chart. PRs holds the short
// labels of race records set that month.
type MonthCell struct {
	Month    string   `json:"month"`
	Count    int      `json:"count"`
	Distance float64  `json:"distance"`
	AvgPace  string   `json:"avg_pace,omitempty"`
	PRs      []string `json:"prs,omitempty"`
}

// Card is one story screen
type Card struct {
	Kind    string       `json:"kind"`
	Title   string       `json:"title"`
	Body    string       `json:"body,omitempty"`
	Stats   []Stat       `json:"stats,omitempty"`
	Records []RecordStat `json:"records,omitempty"`
	Months  []MonthCell  `json:"months,omitempty"`
}

// Race distance display names in podium order
var raceOrder = []struct{ key, label string }{
	{"5k", "5K"},
	{"10k", "10K"},
	{"half_marathon", "Half Marathon"},
	{"marathon", "Marathon"},
}

// convertDistance converts kilometers to the display unit
func convertDistance(km float64, unit string) (float64, string) {
	if unit == UnitMI {
		return km * kmToMiles, "mi"
	}
	return km, "km"
}

// convertPace converts a min/km pace to the display unit
func convertPace(minPerKM float64, unit string) (float64, string) {
	if unit == UnitMI {
		return minPerKM * paceKMPerMI, "min/mi"
	}
	return minPerKM, "min/km"
}

// Build assembles the card sequence for a report. Sections with no data
// are omitted rather than rendered empty. The narrative texts land on
// their own cards near the end.
func Build(r *report.YearlyReport, unit, insightsText, goalsText string) []Card {
	var cards []Card

	cards = append(cards, Card{
		Kind:  "intro",
		Title: fmt.Sprintf("Your %d Wrapped", r.Year),
		Body:  "A year of movement, one card at a time.",
	})

	if a := r.Activities; a != nil && a.TotalActivities > 0 {
		cards = append(cards, totalsCard(a, unit))
		if hl := highlightsCard(a, unit); hl != nil {
			cards = append(cards, *hl)
		}
		if pr := recordsCard(r); pr != nil {
			cards = append(cards, *pr)
		}
		if mc := monthlyCard(a, unit); mc != nil {
			cards = append(cards, *mc)
		}
		if fc := frequencyCard(a); fc != nil {
			cards = append(cards, *fc)
		}
		if cc := countriesCard(a); cc != nil {
			cards = append(cards, *cc)
		}
	}

	cards = append(cards, typeCards(r, unit)...)

	if c := sleepCard(r.Sleep); c != nil {
		cards = append(cards, *c)
	}
	if c := stressCard(r.Stress); c != nil {
		cards = append(cards, *c)
	}
	if c := heartCard(r.HeartRate); c != nil {
		cards = append(cards, *c)
	}
	if c := bodyBatteryCard(r.BodyBattery); c != nil {
		cards = append(cards, *c)
	}
	if c := stepsCard(r.Steps); c != nil {
		cards = append(cards, *c)
	}
	if c := vo2maxCard(r.VO2Max); c != nil {
		cards = append(cards, *c)
	}
	if c := trainingCard(r.Training); c != nil {
		cards = append(cards, *c)
	}

	if insightsText != "" {
		cards = append(cards, Card{Kind: "insights", Title: "Coach's Notes", Body: insightsText})
	}
	if goalsText != "" {
		cards = append(cards, Card{Kind: "goals", Title: "Looking Ahead", Body: goalsText})
	}

	cards = append(cards, Card{
		Kind:  "outro",
		Title: fmt.Sprintf("See you in %d", r.Year+1),
		Body:  "Keep moving.",
	})
	return cards
}

// Secondary bucket display order; running is the primary summary and
// already covered by the totals card.
var bucketOrder = []struct{ key, title string }{
	{"cycling", "On the Bike"},
	{"swimming", "In the Water"},
	{"others", "Everything Else"},
}

// typeCards emits one summary card per non-running activity bucket that
// saw any activity.
func typeCards(r *report.YearlyReport, unit string) []Card {
	var cards []Card
	for _, bucket := range bucketOrder {
		a, ok := r.ByType[bucket.key]
		if !ok || a.TotalActivities == 0 {
			continue
		}
		dist, distUnit := convertDistance(a.TotalDistanceKM, unit)
		stats := []Stat{
			{Label: "Activities", Value: fmt.Sprintf("%d", a.TotalActivities)},
			{Label: "Distance", Value: fmt.Sprintf("%.1f %s", dist, distUnit)},
			{Label: "Time", Value: fmt.Sprintf("%.1f hrs", a.TotalDurationHrs)},
		}
		if h := a.LongestActivity; h != nil {
			longest, _ := convertDistance(h.DistanceKM, unit)
			stats = append(stats, Stat{
				Label: "Longest",
				Value: fmt.Sprintf("%.1f %s", longest, distUnit),
				Sub:   h.Name,
			})
		}
		cards = append(cards, Card{Kind: "type_" + bucket.key, Title: bucket.title, Stats: stats})
	}
	return cards
}

func totalsCard(a *insights.ActivitySummary, unit string) Card {
	dist, distUnit := convertDistance(a.TotalDistanceKM, unit)
	stats := []Stat{
		{Label: "Activities", Value: fmt.Sprintf("%d", a.TotalActivities)},
		{Label: "Distance", Value: fmt.Sprintf("%.1f %s", dist, distUnit)},
		{Label: "Time", Value: fmt.Sprintf("%.1f hrs", a.TotalDurationHrs)},
	}
	if a.TotalElevationM > 0 {
		stats = append(stats, Stat{Label: "Elevation", Value: fmt.Sprintf("%.0f m", a.TotalElevationM)})
	}
	if a.TotalCalories > 0 {
		stats = append(stats, Stat{Label: "Calories", Value: fmt.Sprintf("%.0f", a.TotalCalories)})
	}
	if a.AvgPaceMinKM > 0 {
		pace, paceUnit := convertPace(a.AvgPaceMinKM, unit)
		stats = append(stats, Stat{Label: "Avg Pace", Value: insights.FormatPace(pace) + " " + paceUnit})
	}
	if a.MostCommonType != "" {
		stats = append(stats, Stat{Label: "Favorite", Value: a.MostCommonType})
	}
	return Card{Kind: "totals", Title: "The Year in Numbers", Stats: stats}
}

func highlightsCard(a *insights.ActivitySummary, unit string) *Card {
	var stats []Stat
	if h := a.LongestActivity; h != nil {
		dist, distUnit := convertDistance(h.DistanceKM, unit)
		stats = append(stats, Stat{
			Label: "Longest",
			Value: fmt.Sprintf("%.1f %s", dist, distUnit),
			Sub:   h.Name,
		})
	}
	if h := a.FastestActivity; h != nil {
		pace, paceUnit := convertPace(h.PaceMinKM, unit)
		stats = append(stats, Stat{
			Label: "Fastest",
			Value: insights.FormatPace(pace) + " " + paceUnit,
			Sub:   h.Name,
		})
	}
	if h := a.MostElevationGain; h != nil {
		stats = append(stats, Stat{
			Label: "Biggest Climb",
			Value: fmt.Sprintf("%.0f m", h.ElevationM),
			Sub:   h.Name,
		})
	}
	if h := a.LongestDuration; h != nil {
		stats = append(stats, Stat{
			Label: "Longest Session",
			Value: fmt.Sprintf("%.0f min", h.DurationMin),
			Sub:   h.Name,
		})
	}
	if len(stats) == 0 {
		return nil
	}
	return &Card{Kind: "highlights", Title: "Standout Days", Stats: stats}
}

func recordsCard(r *report.YearlyReport) *Card {
	prs := r.Activities.PersonalRecords
	if len(prs) == 0 {
		return nil
	}
	var records []RecordStat
	for _, race := range raceOrder {
		pr, ok := prs[race.key]
		if !ok {
			continue
		}
		records = append(records, RecordStat{
			Distance: race.label,
			Time:     pr.Time,
			Pace:     pr.Pace,
			Date:     pr.Date,
			AllTime:  r.AllTimeBests[race.key],
		})
	}
	if len(records) == 0 {
		return nil
	}
	return &Card{Kind: "records", Title: "Personal Records", Records: records}
}

// Short labels marking the month a race record was set
var prShortLabels = map[string]string{
	"5k":            "5K",
	"10k":           "10K",
	"half_marathon": "HM",
	"marathon":      "M",
}

// prMonths maps "YYYY-MM" to the labels of race records set that month
func prMonths(records map[string]*insights.RaceRecord) map[string][]string {
	out := map[string][]string{}
	for _, race := range raceOrder {
		pr := records[race.key]
		if pr == nil {
			continue
		}
		date, err := insights.ParseFlexibleDate(pr.Date)
		if err != nil {
			continue
		}
		month := date.Format("2006-01")
		out[month] = append(out[month], prShortLabels[race.key])
	}
	return out
}

func monthlyCard(a *insights.ActivitySummary, unit string) *Card {
	if len(a.MonthlyStats) == 0 {
		return nil
	}
	anyDistance := false
	months := make([]string, 0, len(a.MonthlyStats))
	for m, ms := range a.MonthlyStats {
		months = append(months, m)
		if ms.TotalDistanceKM > 0 {
			anyDistance = true
		}
	}
	if !anyDistance {
		return nil
	}
	sort.Strings(months)

	prsByMonth := prMonths(a.PersonalRecords)
	cells := make([]MonthCell, 0, len(months))
	for _, m := range months {
		ms := a.MonthlyStats[m]
		dist, _ := convertDistance(ms.TotalDistanceKM, unit)
		cell := MonthCell{Month: m, Count: ms.Count, Distance: dist, PRs: prsByMonth[m]}
		if ms.AvgPaceMinKM > 0 {
			pace, _ := convertPace(ms.AvgPaceMinKM, unit)
			cell.AvgPace = insights.FormatPace(pace)
		}
		cells = append(cells, cell)
	}
	return &Card{Kind: "monthly", Title: "Month by Month", Months: cells}
}

func frequencyCard(a *insights.ActivitySummary) *Card {
	if a.ActivitiesPerWeek <= 0 && a.ActiveWeeks == 0 {
		return nil
	}
	stats := []Stat{
		{Label: "Active Weeks", Value: fmt.Sprintf("%d", a.ActiveWeeks)},
	}
	if a.ActivitiesPerWeek > 0 {
		stats = append(stats, Stat{Label: "Per Week", Value: fmt.Sprintf("%.1f", a.ActivitiesPerWeek)})
	}
	return &Card{Kind: "frequency", Title: "Showing Up", Stats: stats}
}

func countriesCard(a *insights.ActivitySummary) *Card {
	if len(a.Countries) == 0 {
		return nil
	}
	stats := make([]Stat, 0, len(a.Countries))
	for _, c := range a.Countries {
		stats = append(stats, Stat{Label: "Country", Value: c})
	}
	return &Card{
		Kind:  "countries",
		Title: fmt.Sprintf("%d Countries Explored", len(a.Countries)),
		Stats: stats,
	}
}

func sleepCard(s *insights.SleepSummary) *Card {
	if s == nil || s.NightsTracked == 0 {
		return nil
	}
	stats := []Stat{
		{Label: "Nights Tracked", Value: fmt.Sprintf("%d", s.NightsTracked)},
		{Label: "Avg Sleep", Value: fmt.Sprintf("%.1f hrs", s.AvgSleepHours)},
	}
	if s.AvgSleepScore > 0 {
		stats = append(stats, Stat{Label: "Avg Score", Value: fmt.Sprintf("%.0f", s.AvgSleepScore)})
	}
	if s.BestSleepScore > 0 {
		stats = append(stats, Stat{Label: "Best Score", Value: fmt.Sprintf("%.0f", s.BestSleepScore)})
	}
	return &Card{Kind: "sleep", Title: "Rest and Recovery", Stats: stats}
}

func stressCard(s *insights.StressSummary) *Card {
	if s == nil || s.DaysTracked == 0 {
		return nil
	}
	return &Card{Kind: "stress", Title: "Under Pressure", Stats: []Stat{
		{Label: "Avg Stress", Value: fmt.Sprintf("%.0f", s.AvgStressLevel)},
		{Label: "Calm Days", Value: fmt.Sprintf("%d", s.LowStressDays)},
		{Label: "Tough Days", Value: fmt.Sprintf("%d", s.HighStressDays)},
	}}
}

func heartCard(h *insights.HeartSummary) *Card {
	if h == nil || h.DaysTracked == 0 {
		return nil
	}
	stats := []Stat{
		{Label: "Avg Resting HR", Value: fmt.Sprintf("%.0f bpm", h.AvgRestingHR)},
	}
	if h.MinRestingHR > 0 {
		stats = append(stats, Stat{Label: "Lowest Resting", Value: fmt.Sprintf("%.0f bpm", h.MinRestingHR)})
	}
	if h.MaxRecordedHR > 0 {
		stats = append(stats, Stat{Label: "Peak", Value: fmt.Sprintf("%.0f bpm", h.MaxRecordedHR)})
	}
	return &Card{Kind: "heart_rate", Title: "Heart of the Matter", Stats: stats}
}

func bodyBatteryCard(b *insights.BodyBatterySummary) *Card {
	if b == nil || b.DaysTracked == 0 {
		return nil
	}
	return &Card{Kind: "body_battery", Title: "Charge and Drain", Stats: []Stat{
		{Label: "Avg Charged", Value: fmt.Sprintf("%.0f", b.AvgCharged)},
		{Label: "Avg Drained", Value: fmt.Sprintf("%.0f", b.AvgDrained)},
	}}
}

func stepsCard(s *insights.StepsSummary) *Card {
	if s == nil || s.DaysTracked == 0 {
		return nil
	}
	stats := []Stat{
		{Label: "Total Steps", Value: fmt.Sprintf("%d", s.TotalSteps)},
		{Label: "Daily Average", Value: fmt.Sprintf("%.0f", s.AvgDailySteps)},
	}
	if s.BestDay != "" {
		stats = append(stats, Stat{
			Label: "Biggest Day",
			Value: fmt.Sprintf("%d", s.BestDaySteps),
			Sub:   s.BestDay,
		})
	}
	if s.DaysOver10K > 0 {
		stats = append(stats, Stat{Label: "Days Over 10k", Value: fmt.Sprintf("%d", s.DaysOver10K)})
	}
	return &Card{Kind: "steps", Title: "Step by Step", Stats: stats}
}

func vo2maxCard(v *insights.VO2MaxSummary) *Card {
	if v == nil || v.SamplesTracked == 0 {
		return nil
	}
	stats := []Stat{
		{Label: "Current", Value: fmt.Sprintf("%.1f", v.EndValue)},
		{Label: "Peak", Value: fmt.Sprintf("%.1f", v.PeakValue)},
	}
	if v.Improvement != 0 {
		stats = append(stats, Stat{
			Label: "Change",
			Value: fmt.Sprintf("%+.1f", v.Improvement),
			Sub:   fmt.Sprintf("%+.1f%%", v.ImprovementPercent),
		})
	}
	return &Card{Kind: "vo2max", Title: "Engine Size", Stats: stats}
}

func trainingCard(t *insights.TrainingSummary) *Card {
	if t == nil || t.DaysTracked == 0 {
		return nil
	}
	stats := []Stat{}
	if t.MostCommonStatus != "" {
		stats = append(stats, Stat{Label: "Typical Status", Value: t.MostCommonStatus})
	}
	if t.AvgAcuteLoad > 0 {
		stats = append(stats, Stat{Label: "Avg Load", Value: fmt.Sprintf("%.0f", t.AvgAcuteLoad)})
	}
	if t.LatestFeedback != "" {
		stats = append(stats, Stat{Label: "Latest Feedback", Value: t.LatestFeedback})
	}
	if len(stats) == 0 {
		return nil
	}
	return &Card{Kind: "training", Title: "Training Load", Stats: stats}
}
