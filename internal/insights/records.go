package insights

import (
	"github.com/joshdurbin/garmin-wrapped/internal/garmin"
)

// All-time personal record type IDs for running race distances
var recordTypeKeys = map[int]string{
	5: "5k",
	6: "10k",
	7: "marathon",
	8: "half_marathon",
}

// AllTimeRecord is a lifetime best for one race distance
type AllTimeRecord struct {
	Time        string  `json:"time"`
	Date        string  `json:"date"`
	DurationSec float64 `json:"duration_sec"`
}

// ParseAllTimeRecords maps the raw record list to race distance keys.
// Record values are durations in seconds; unknown type IDs are ignored.
func ParseAllTimeRecords(records []garmin.AllTimeRecord) map[string]*AllTimeRecord {
	out := map[string]*AllTimeRecord{}
	for _, rec := range records {
		key, ok := recordTypeKeys[rec.TypeID]
		if !ok || rec.Value <= 0 {
			continue
		}
		out[key] = &AllTimeRecord{
			Time:        FormatDuration(rec.Value),
			Date:        rec.StartDate,
			DurationSec: rec.Value,
		}
	}
	return out
}

// Timing slop between the activity feed and the records service
const allTimeToleranceSec = 2

// IsAllTimeBest reports whether a year PR matches or beats the lifetime
// record for the same distance. A year PR with no lifetime entry counts
// as an all-time best.
func IsAllTimeBest(yearPR *RaceRecord, allTime *AllTimeRecord) bool {
	if yearPR == nil {
		return false
	}
	if allTime == nil {
		return true
	}
	return yearPR.DurationSec <= allTime.DurationSec+allTimeToleranceSec
}

// MarkAllTimeBests annotates year PRs that are also lifetime bests
func MarkAllTimeBests(yearPRs map[string]*RaceRecord, allTime map[string]*AllTimeRecord) map[string]bool {
	marks := map[string]bool{}
	for key, pr := range yearPRs {
		marks[key] = IsAllTimeBest(pr, allTime[key])
	}
	return marks
}
