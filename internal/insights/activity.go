package insights

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joshdurbin/garmin-wrapped/internal/garmin"
	"github.com/joshdurbin/garmin-wrapped/internal/logging"
)

// Race distance tolerance bands in kilometers. An activity whose distance
// falls inside a band counts as a candidate for that race distance.
var raceBands = []struct {
	Key      string
	Min, Max float64
}{
	{"5k", 4.8, 5.2},
	{"10k", 9.8, 10.2},
	{"half_marathon", 20.5, 21.5},
	{"marathon", 42.0, 43.0},
}

// RaceRecord is the fastest qualifying activity for a race distance.
// DurationSec is carried so cached reports can still compare against
// lifetime records.
type RaceRecord struct {
	Time        string  `json:"time"`
	Pace        string  `json:"pace"`
	Date        string  `json:"date"`
	DistanceKM  float64 `json:"distance_km"`
	DurationSec float64 `json:"duration_sec"`
}

// MonthStats aggregates activities within one calendar month
type MonthStats struct {
	Count            int     `json:"count"`
	TotalDistanceKM  float64 `json:"total_distance_km"`
	TotalDurationMin float64 `json:"total_duration_min"`
	AvgPaceMinKM     float64 `json:"avg_pace_min_km"`
}

// Highlight is a single standout activity
type Highlight struct {
	Name        string  `json:"name"`
	Date        string  `json:"date"`
	DistanceKM  float64 `json:"distance_km,omitempty"`
	DurationMin float64 `json:"duration_min,omitempty"`
	ElevationM  float64 `json:"elevation_m,omitempty"`
	PaceMinKM   float64 `json:"pace_min_km,omitempty"`
}

// ActivitySummary is the full analysis of a year of activities
type ActivitySummary struct {
	TotalActivities  int     `json:"total_activities"`
	TotalDistanceKM  float64 `json:"total_distance_km"`
	TotalDurationHrs float64 `json:"total_duration_hrs"`
	TotalCalories    float64 `json:"total_calories"`
	TotalElevationM  float64 `json:"total_elevation_m"`

	AvgDistanceKM  float64 `json:"avg_distance_km"`
	AvgDurationMin float64 `json:"avg_duration_min"`
	AvgPaceMinKM   float64 `json:"avg_pace_min_km,omitempty"`
	AvgHeartRate   float64 `json:"avg_heart_rate,omitempty"`

	ActivitiesPerWeek float64 `json:"activities_per_week"`
	ActiveWeeks       int     `json:"active_weeks"`

	LongestActivity   *Highlight `json:"longest_activity,omitempty"`
	FastestActivity   *Highlight `json:"fastest_activity,omitempty"`
	MostElevationGain *Highlight `json:"most_elevation_gain,omitempty"`
	LongestDuration   *Highlight `json:"longest_duration,omitempty"`

	MostCommonType string         `json:"most_common_type,omitempty"`
	TypeCounts     map[string]int `json:"type_counts,omitempty"`

	PersonalRecords map[string]*RaceRecord `json:"personal_records,omitempty"`
	MonthlyStats    map[string]*MonthStats `json:"monthly_stats,omitempty"`

	Countries []string `json:"countries,omitempty"`

	SkippedDates int `json:"-"`
}

// ParseFlexibleDate parses the timestamp formats the activity API emits:
// RFC 3339 with or without a zone, "YYYY-MM-DD HH:MM:SS", or a bare date.
func ParseFlexibleDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", s)
}

// paceMinPerKM returns minutes per kilometer, or 0 when distance is zero
func paceMinPerKM(durationSec, distanceM float64) float64 {
	if distanceM <= 0 {
		return 0
	}
	return (durationSec / 60) / (distanceM / 1000)
}

// FormatPace renders a min/km pace as "M:SS"
func FormatPace(minutes float64) string {
	if minutes <= 0 {
		return "N/A"
	}
	whole := int(minutes)
	seconds := int((minutes - float64(whole)) * 60)
	return fmt.Sprintf("%d:%02d", whole, seconds)
}

// FormatDuration renders seconds as "HH:MM:SS"
func FormatDuration(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// AnalyzeActivities computes the full activity summary for one year.
// Counts, type breakdown, countries, race PRs, and monthly rollups cover
// every input, while distance, duration, pace, and extreme selections only
// consider activities with both positive distance and duration. Activities
// with unparseable start dates count toward totals but are excluded from
// date-derived metrics.
func AnalyzeActivities(activities []garmin.Activity) *ActivitySummary {
	s := &ActivitySummary{
		TypeCounts:      map[string]int{},
		PersonalRecords: map[string]*RaceRecord{},
		MonthlyStats:    map[string]*MonthStats{},
	}
	if len(activities) == 0 {
		return s
	}

	s.TotalActivities = len(activities)

	var hrSum float64
	var hrCount, eligible int
	var dates []time.Time
	countrySeen := map[string]bool{}

	for _, a := range activities {
		distKM := a.Distance / 1000
		durMin := a.Duration / 60

		if a.ActivityType.TypeKey != "" {
			s.TypeCounts[a.ActivityType.TypeKey]++
		}
		if country := countryOf(a.LocationName); country != "" && !countrySeen[country] {
			countrySeen[country] = true
			s.Countries = append(s.Countries, country)
		}

		// Race PRs: fastest qualifying time per distance band
		for _, band := range raceBands {
			if distKM < band.Min || distKM > band.Max {
				continue
			}
			best, ok := s.PersonalRecords[band.Key]
			if !ok || a.Duration < best.DurationSec {
				s.PersonalRecords[band.Key] = &RaceRecord{
					Time:        FormatDuration(a.Duration),
					Pace:        FormatPace(paceMinPerKM(a.Duration, a.Distance)),
					Date:        a.StartTimeLocal,
					DistanceKM:  distKM,
					DurationSec: a.Duration,
				}
			}
		}

		date, dateErr := ParseFlexibleDate(a.StartTimeLocal)
		if dateErr != nil {
			s.SkippedDates++
		} else {
			month := date.Format("2006-01")
			ms, ok := s.MonthlyStats[month]
			if !ok {
				ms = &MonthStats{}
				s.MonthlyStats[month] = ms
			}
			ms.Count++
			ms.TotalDistanceKM += distKM
			ms.TotalDurationMin += durMin
		}

		// Everything below only considers activities with real
		// distance and duration data.
		if a.Distance <= 0 || a.Duration <= 0 {
			continue
		}
		eligible++

		s.TotalDistanceKM += distKM
		s.TotalDurationHrs += a.Duration / 3600
		s.TotalCalories += a.Calories
		s.TotalElevationM += a.ElevationGain

		if a.AverageHR > 0 {
			hrSum += a.AverageHR
			hrCount++
		}
		if dateErr == nil {
			dates = append(dates, date)
		}

		pace := paceMinPerKM(a.Duration, a.Distance)

		// Strict comparisons keep the first occurrence on ties
		if s.LongestActivity == nil || distKM > s.LongestActivity.DistanceKM {
			s.LongestActivity = &Highlight{Name: a.ActivityName, Date: a.StartTimeLocal, DistanceKM: distKM}
		}
		if s.FastestActivity == nil || pace < s.FastestActivity.PaceMinKM {
			s.FastestActivity = &Highlight{Name: a.ActivityName, Date: a.StartTimeLocal, DistanceKM: distKM, PaceMinKM: pace}
		}
		if a.ElevationGain > 0 && (s.MostElevationGain == nil || a.ElevationGain > s.MostElevationGain.ElevationM) {
			s.MostElevationGain = &Highlight{Name: a.ActivityName, Date: a.StartTimeLocal, ElevationM: a.ElevationGain}
		}
		if s.LongestDuration == nil || durMin > s.LongestDuration.DurationMin {
			s.LongestDuration = &Highlight{Name: a.ActivityName, Date: a.StartTimeLocal, DurationMin: durMin}
		}
	}

	if eligible > 0 {
		n := float64(eligible)
		s.AvgDistanceKM = s.TotalDistanceKM / n
		s.AvgDurationMin = (s.TotalDurationHrs * 60) / n
	}
	if s.TotalDistanceKM > 0 {
		s.AvgPaceMinKM = (s.TotalDurationHrs * 60) / s.TotalDistanceKM
	}
	if hrCount > 0 {
		s.AvgHeartRate = hrSum / float64(hrCount)
	}

	for _, ms := range s.MonthlyStats {
		if ms.TotalDistanceKM > 0 {
			ms.AvgPaceMinKM = ms.TotalDurationMin / ms.TotalDistanceKM
		}
	}

	s.MostCommonType = mostCommonType(s.TypeCounts)
	s.ActivitiesPerWeek, s.ActiveWeeks = frequency(dates)
	sort.Strings(s.Countries)

	if s.SkippedDates > 0 {
		logging.Logger.Debug().Int("skipped", s.SkippedDates).Msg("activities with unparseable dates excluded from date metrics")
	}
	return s
}

// countryOf extracts the country from a location name such as
// "Lyon, Auvergne-Rhône-Alpes, France": the last comma-separated token.
func countryOf(location string) string {
	if location == "" {
		return ""
	}
	parts := strings.Split(location, ",")
	return strings.TrimSpace(parts[len(parts)-1])
}

// mostCommonType returns the activity type with the highest count.
// Ties resolve to the lexicographically smallest key for determinism.
func mostCommonType(counts map[string]int) string {
	var best string
	var bestCount int
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}

// frequency computes activities per week across the span between the first
// and last activity dates, and the number of distinct active ISO weeks.
func frequency(dates []time.Time) (perWeek float64, activeWeeks int) {
	if len(dates) == 0 {
		return 0, 0
	}

	weeks := map[string]bool{}
	first, last := dates[0], dates[0]
	for _, d := range dates {
		if d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
		year, week := d.ISOWeek()
		weeks[fmt.Sprintf("%d-%02d", year, week)] = true
	}
	activeWeeks = len(weeks)

	if len(dates) < 2 {
		return 0, activeWeeks
	}
	// A zero-length span reports the raw count rather than dividing by it
	spanWeeks := last.Sub(first).Hours() / 24 / 7
	if spanWeeks <= 0 {
		return float64(len(dates)), activeWeeks
	}
	return float64(len(dates)) / spanWeeks, activeWeeks
}
