package garmin

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Activity represents one recorded exercise session from the Connect API.
// Distances are meters, durations seconds, matching the wire format.
type Activity struct {
	ActivityID    int64        `json:"activityId"`
	ActivityName  string       `json:"activityName"`
	Distance      float64      `json:"distance"`
	Duration      float64      `json:"duration"`
	ElevationGain float64      `json:"elevationGain"`
	StartTimeLocal string      `json:"startTimeLocal"`
	Calories      float64      `json:"calories"`
	AverageHR     float64      `json:"averageHR"`
	ActivityType  ActivityType `json:"activityType"`
	LocationName  string       `json:"locationName"`
}

// ActivityType carries Garmin's type taxonomy for an activity
type ActivityType struct {
	TypeKey string `json:"typeKey"`
}

// Activity-type buckets the rest of the system groups by
const (
	BucketRunning  = "running"
	BucketCycling  = "cycling"
	BucketSwimming = "swimming"
	BucketOthers   = "others"
)

// BucketOf maps a raw Garmin typeKey to one of the four logical buckets
func BucketOf(typeKey string) string {
	key := strings.ToLower(typeKey)
	switch {
	case strings.Contains(key, "running") || strings.Contains(key, "run"):
		return BucketRunning
	case strings.Contains(key, "cycling") || strings.Contains(key, "biking") || strings.Contains(key, "bike"):
		return BucketCycling
	case strings.Contains(key, "swimming") || strings.Contains(key, "swim"):
		return BucketSwimming
	default:
		return BucketOthers
	}
}

// MatchesBucket reports whether an activity's typeKey belongs to the given bucket.
// The "others" bucket matches anything that is not running, cycling, or swimming.
func MatchesBucket(typeKey, bucket string) bool {
	key := strings.ToLower(typeKey)
	switch strings.ToLower(bucket) {
	case BucketOthers:
		return BucketOf(key) == BucketOthers
	case BucketCycling:
		return BucketOf(key) == BucketCycling
	case BucketSwimming:
		return BucketOf(key) == BucketSwimming
	default:
		// Default matching for running and any future literal buckets
		return strings.Contains(key, strings.ToLower(bucket))
	}
}

// Score normalizes Garmin's two encodings of a score field: a bare number
// or an object with a "value" key. Decoded once at ingestion so aggregators
// never see the duck-typed shape.
type Score struct {
	Value float64
	Valid bool
}

func (s *Score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*s = Score{}
		return nil
	}
	if data[0] == '{' {
		var obj struct {
			Value *float64 `json:"value"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.Value != nil {
			*s = Score{Value: *obj.Value, Valid: true}
		} else {
			*s = Score{}
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Score{Value: v, Valid: true}
	return nil
}

func (s Score) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}

// SleepDTO is one night's sleep detail
type SleepDTO struct {
	OverallSleepScore Score   `json:"overallSleepScore"`
	SleepTimeSeconds  float64 `json:"sleepTimeSeconds"`
	DeepSleepSeconds  float64 `json:"deepSleepSeconds"`
	LightSleepSeconds float64 `json:"lightSleepSeconds"`
	RemSleepSeconds   float64 `json:"remSleepSeconds"`
	AwakeSleepSeconds float64 `json:"awakeSleepSeconds"`
}

// SleepRecord accepts both response shapes the API produces: the sleep DTO
// nested under "dailySleepDTO", or the DTO fields at the top level.
type SleepRecord struct {
	SleepDTO
}

func (r *SleepRecord) UnmarshalJSON(data []byte) error {
	var wrapped struct {
		DailySleepDTO *SleepDTO `json:"dailySleepDTO"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.DailySleepDTO != nil {
		r.SleepDTO = *wrapped.DailySleepDTO
		return nil
	}
	return json.Unmarshal(data, &r.SleepDTO)
}

// StressRecord is one day's stress sample
type StressRecord struct {
	CalendarDate   string  `json:"calendarDate"`
	AvgStressLevel float64 `json:"avgStressLevel"`
	MaxStressLevel float64 `json:"maxStressLevel"`
}

// HeartRateRecord is one day's heart rate sample
type HeartRateRecord struct {
	CalendarDate     string  `json:"calendarDate"`
	RestingHeartRate float64 `json:"restingHeartRate"`
	MaxHeartRate     float64 `json:"maxHeartRate"`
}

// BodyBatteryRecord is one day's body battery charge/drain totals.
// The API returns an array per day; the client keeps the first entry.
type BodyBatteryRecord struct {
	Charged float64 `json:"charged"`
	Drained float64 `json:"drained"`
}

// StepsRecord is one day's step total. The API returns either an array of
// 15-minute interval buckets or an object with a running total; both decode
// to the same normalized record.
type StepsRecord struct {
	CalendarDate string
	TotalSteps   int
}

func (r *StepsRecord) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var intervals []struct {
			Steps int `json:"steps"`
		}
		if err := json.Unmarshal(data, &intervals); err != nil {
			return err
		}
		total := 0
		for _, iv := range intervals {
			total += iv.Steps
		}
		*r = StepsRecord{TotalSteps: total}
		return nil
	}
	var obj struct {
		CalendarDate string `json:"calendarDate"`
		TotalSteps   int    `json:"totalSteps"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = StepsRecord{CalendarDate: obj.CalendarDate, TotalSteps: obj.TotalSteps}
	return nil
}

// VO2MaxSample is one day's VO2max reading, normalized from the max-metrics payload
type VO2MaxSample struct {
	Date   string  `json:"date"`
	VO2Max float64 `json:"vo2Max"`
}

// maxMetricsEntry mirrors the metrics-service response shape
type maxMetricsEntry struct {
	Generic struct {
		VO2MaxPreciseValue float64 `json:"vo2MaxPreciseValue"`
		VO2MaxValue        float64 `json:"vo2MaxValue"`
	} `json:"generic"`
}

// AcuteTrainingLoad carries the daily load figures of a training status
type AcuteTrainingLoad struct {
	DailyTrainingLoadAcute   float64 `json:"dailyTrainingLoadAcute"`
	DailyTrainingLoadChronic float64 `json:"dailyTrainingLoadChronic"`
}

// DeviceTrainingStatus is the per-device slice of a training status payload
type DeviceTrainingStatus struct {
	AcuteTrainingLoadDTO         AcuteTrainingLoad `json:"acuteTrainingLoadDTO"`
	TrainingStatus               string `json:"trainingStatus"`
	TrainingStatusFeedbackPhrase string `json:"trainingStatusFeedbackPhrase"`
}

// TrainingStatusRecord is one day's aggregated training status
type TrainingStatusRecord struct {
	Date                     string `json:"date"`
	MostRecentTrainingStatus struct {
		LatestTrainingStatusData map[string]DeviceTrainingStatus `json:"latestTrainingStatusData"`
	} `json:"mostRecentTrainingStatus"`
}

// AllTimeRecord is one entry of the all-time personal records endpoint.
// Value is seconds for the time-based record types.
type AllTimeRecord struct {
	TypeID    int     `json:"typeId"`
	Value     float64 `json:"value"`
	StartDate string  `json:"actStartDateTimeInGMTFormatted"`
}
