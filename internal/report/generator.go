package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/joshdurbin/garmin-wrapped/internal/garmin"
	"github.com/joshdurbin/garmin-wrapped/internal/insights"
	"github.com/joshdurbin/garmin-wrapped/internal/logging"
	"github.com/joshdurbin/garmin-wrapped/internal/store"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 5

// Fetcher is the slice of the Garmin client the generator needs
type Fetcher interface {
	Activities(ctx context.Context, start, end, bucket string) ([]garmin.Activity, error)
	Sleep(ctx context.Context, start, end string) ([]garmin.SleepRecord, error)
	Stress(ctx context.Context, start, end string) ([]garmin.StressRecord, error)
	HeartRate(ctx context.Context, start, end string) ([]garmin.HeartRateRecord, error)
	BodyBattery(ctx context.Context, start, end string) ([]garmin.BodyBatteryRecord, error)
	Steps(ctx context.Context, start, end string) ([]garmin.StepsRecord, error)
	VO2Max(ctx context.Context, start, end string) ([]garmin.VO2MaxSample, error)
	TrainingStatus(ctx context.Context, start, end string) ([]garmin.TrainingStatusRecord, error)
	PersonalRecords(ctx context.Context) ([]garmin.AllTimeRecord, error)
}

// Dialer authenticates an account and returns a Fetcher for it
type Dialer func(ctx context.Context, creds garmin.Credentials) (Fetcher, error)

// Generator builds yearly reports, caching completed ones per account
type Generator struct {
	Dial    Dialer
	Store   store.Backend
	Workers int
}

// NewGenerator builds a generator with the default worker count
func NewGenerator(dial Dialer, backend store.Backend) *Generator {
	return &Generator{Dial: dial, Store: backend, Workers: defaultWorkers}
}

// sameTypeSet reports whether two bucket lists contain the same set of
// activity types, regardless of order or duplicates.
func sameTypeSet(a, b []string) bool {
	set := func(list []string) map[string]bool {
		m := map[string]bool{}
		for _, v := range list {
			m[v] = true
		}
		return m
	}
	sa, sb := set(a), set(b)
	if len(sa) != len(sb) {
		return false
	}
	for k := range sa {
		if !sb[k] {
			return false
		}
	}
	return true
}

// Cached returns the stored report for the account if it covers the same
// year and the same activity type set. Reports stored before type sets
// were recorded never match.
func (g *Generator) Cached(ctx context.Context, email string, year int, buckets []string) (*YearlyReport, bool) {
	payload, err := g.Store.Load(ctx, store.UserKey(email))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logging.Logger.Warn().Err(err).Msg("cache load failed")
		}
		return nil, false
	}

	var report YearlyReport
	if err := json.Unmarshal(payload, &report); err != nil {
		logging.Logger.Warn().Err(err).Msg("discarding unreadable cached report")
		return nil, false
	}
	if report.Year != year {
		return nil, false
	}
	if report.ActivityTypes == nil || !sameTypeSet(report.ActivityTypes, buckets) {
		logging.Logger.Info().
			Strs("cached", report.ActivityTypes).
			Strs("requested", buckets).
			Msg("activity type set changed, regenerating")
		return nil, false
	}
	return &report, true
}

// Invalidate drops the cached report for the account
func (g *Generator) Invalidate(ctx context.Context, email string) error {
	return g.Store.Delete(ctx, store.UserKey(email))
}

// CheckActivities logs in and reports how many activities of each
// requested type the account has for the year, without generating a
// report. Used to let callers tune their type selection first.
func (g *Generator) CheckActivities(ctx context.Context, creds garmin.Credentials, year int, buckets []string) (map[string]int, error) {
	fetcher, err := g.Dial(ctx, creds)
	if err != nil {
		return nil, err
	}

	start, end := yearRange(year)
	all, err := fetcher.Activities(ctx, start, end, "")
	if err != nil {
		return nil, fmt.Errorf("fetching activities: %w", err)
	}

	counts := map[string]int{}
	for _, bucket := range buckets {
		counts[bucket] = 0
	}
	for _, a := range all {
		for _, bucket := range buckets {
			if garmin.MatchesBucket(a.ActivityType.TypeKey, bucket) {
				counts[bucket]++
			}
		}
	}
	return counts, nil
}

func yearRange(year int) (string, string) {
	return fmt.Sprintf("%d-01-01", year), fmt.Sprintf("%d-12-31", year)
}

// Generate builds the report for one account and year, fetching all data
// sections concurrently. A failed section leaves its slot empty and is
// recorded in Failures; only authentication errors abort the run. The
// finished report is cached. The second return reports a cache hit.
func (g *Generator) Generate(ctx context.Context, creds garmin.Credentials, year int, buckets []string, progress ProgressFunc) (*YearlyReport, bool, error) {
	if cached, ok := g.Cached(ctx, creds.Email, year, buckets); ok {
		logging.Logger.Info().Str("email", creds.Email).Int("year", year).Msg("serving cached report")
		return cached, true, nil
	}

	fetcher, err := g.Dial(ctx, creds)
	if err != nil {
		return nil, false, err
	}

	notify := func(p Progress) {
		if progress != nil {
			progress(p)
		}
	}

	start, end := yearRange(year)
	types := normalizeBuckets(buckets)

	report := &YearlyReport{
		Year:          year,
		GeneratedAt:   time.Now().UTC(),
		ActivityTypes: types,
	}

	var (
		mu         sync.Mutex
		byBucket   = map[string][]garmin.Activity{}
		allTimeRaw []garmin.AllTimeRecord
		completed  int
	)

	type task struct {
		name string
		run  func(ctx context.Context) error
	}

	var tasks []task
	for _, bucket := range types {
		bucket := bucket
		tasks = append(tasks, task{"activities_" + bucket, func(ctx context.Context) error {
			got, err := fetcher.Activities(ctx, start, end, bucket)
			if err != nil {
				return err
			}
			mu.Lock()
			byBucket[bucket] = got
			mu.Unlock()
			return nil
		}})
	}
	tasks = append(tasks, []task{
		{"sleep", func(ctx context.Context) error {
			got, err := fetcher.Sleep(ctx, start, end)
			if err != nil {
				return err
			}
			mu.Lock()
			report.Sleep = insights.SummarizeSleep(got)
			mu.Unlock()
			return nil
		}},
		{"stress", func(ctx context.Context) error {
			got, err := fetcher.Stress(ctx, start, end)
			if err != nil {
				return err
			}
			mu.Lock()
			report.Stress = insights.SummarizeStress(got)
			mu.Unlock()
			return nil
		}},
		{"heart_rate", func(ctx context.Context) error {
			got, err := fetcher.HeartRate(ctx, start, end)
			if err != nil {
				return err
			}
			mu.Lock()
			report.HeartRate = insights.SummarizeHeartRate(got)
			mu.Unlock()
			return nil
		}},
		{"body_battery", func(ctx context.Context) error {
			got, err := fetcher.BodyBattery(ctx, start, end)
			if err != nil {
				return err
			}
			mu.Lock()
			report.BodyBattery = insights.SummarizeBodyBattery(got)
			mu.Unlock()
			return nil
		}},
		{"steps", func(ctx context.Context) error {
			got, err := fetcher.Steps(ctx, start, end)
			if err != nil {
				return err
			}
			mu.Lock()
			report.Steps = insights.SummarizeSteps(got)
			mu.Unlock()
			return nil
		}},
		{"vo2max", func(ctx context.Context) error {
			got, err := fetcher.VO2Max(ctx, start, end)
			if err != nil {
				return err
			}
			mu.Lock()
			report.VO2Max = insights.SummarizeVO2Max(got)
			mu.Unlock()
			return nil
		}},
		{"training_status", func(ctx context.Context) error {
			got, err := fetcher.TrainingStatus(ctx, start, end)
			if err != nil {
				return err
			}
			mu.Lock()
			report.Training = insights.SummarizeTrainingStatus(got)
			mu.Unlock()
			return nil
		}},
		{"personal_records", func(ctx context.Context) error {
			got, err := fetcher.PersonalRecords(ctx)
			if err != nil {
				return err
			}
			mu.Lock()
			allTimeRaw = got
			mu.Unlock()
			return nil
		}},
	}...)

	total := len(tasks)
	workers := g.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	notify(Progress{Stage: "fetching", Completed: 0, Total: total})

	g2, gctx := errgroup.WithContext(ctx)
	g2.SetLimit(workers)

	for _, t := range tasks {
		t := t
		g2.Go(func() error {
			err := t.run(gctx)
			mu.Lock()
			completed++
			done := completed
			if err != nil {
				if errors.Is(err, garmin.ErrAuthFailed) || errors.Is(err, context.Canceled) {
					mu.Unlock()
					return err
				}
				report.Failures = append(report.Failures, t.name)
				logging.Logger.Warn().Err(err).Str("section", t.name).Msg("section fetch failed, continuing without it")
			}
			mu.Unlock()
			notify(Progress{Stage: t.name, Completed: done, Total: total})
			logging.Logger.Info().Str("section", t.name).Msgf("completed (%d/%d)", done, total)
			return nil
		})
	}

	if err := g2.Wait(); err != nil {
		return nil, false, err
	}

	notify(Progress{Stage: "assembling", Completed: total, Total: total})

	report.Activities, report.ByType = analyzeSelection(byBucket, types)
	report.AllTimeRecords = insights.ParseAllTimeRecords(allTimeRaw)
	report.AllTimeBests = insights.MarkAllTimeBests(report.Activities.PersonalRecords, report.AllTimeRecords)
	fillEmptySections(report)
	sort.Strings(report.Failures)

	if payload, err := json.Marshal(report); err == nil {
		if err := g.Store.Save(ctx, store.UserKey(creds.Email), payload); err != nil {
			logging.Logger.Warn().Err(err).Msg("failed to cache report")
		}
	}

	notify(Progress{Stage: "complete", Completed: total, Total: total})
	return report, false, nil
}

// normalizeBuckets returns a sorted, deduplicated copy, defaulting to
// running when nothing is requested.
func normalizeBuckets(buckets []string) []string {
	if len(buckets) == 0 {
		return []string{garmin.BucketRunning}
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(buckets))
	for _, b := range buckets {
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	sort.Strings(out)
	return out
}

// analyzeSelection analyzes each requested type bucket independently from
// its fetched activities. The primary summary is the running bucket when
// running was requested; otherwise all selected buckets pool into one
// combined analysis. Fetched lists are re-filtered so a fetcher returning
// a superset still yields per-bucket results.
func analyzeSelection(fetched map[string][]garmin.Activity, buckets []string) (*insights.ActivitySummary, map[string]*insights.ActivitySummary) {
	var pooled []garmin.Activity
	byType := make(map[string]*insights.ActivitySummary, len(buckets))
	for _, bucket := range buckets {
		var matched []garmin.Activity
		for _, a := range fetched[bucket] {
			if garmin.MatchesBucket(a.ActivityType.TypeKey, bucket) {
				matched = append(matched, a)
			}
		}
		byType[bucket] = insights.AnalyzeActivities(matched)
		pooled = append(pooled, matched...)
	}

	for _, b := range buckets {
		if b == garmin.BucketRunning {
			return byType[garmin.BucketRunning], byType
		}
	}
	return insights.AnalyzeActivities(pooled), byType
}

// fillEmptySections replaces nil sections from failed fetches with empty
// summaries so renderers never see a nil pointer.
func fillEmptySections(r *YearlyReport) {
	if r.Activities == nil {
		r.Activities = insights.AnalyzeActivities(nil)
	}
	if r.Sleep == nil {
		r.Sleep = &insights.SleepSummary{}
	}
	if r.Stress == nil {
		r.Stress = &insights.StressSummary{}
	}
	if r.HeartRate == nil {
		r.HeartRate = &insights.HeartSummary{}
	}
	if r.BodyBattery == nil {
		r.BodyBattery = &insights.BodyBatterySummary{}
	}
	if r.Steps == nil {
		r.Steps = &insights.StepsSummary{}
	}
	if r.VO2Max == nil {
		r.VO2Max = &insights.VO2MaxSummary{}
	}
	if r.Training == nil {
		r.Training = &insights.TrainingSummary{StatusCounts: map[string]int{}}
	}
	if r.AllTimeRecords == nil {
		r.AllTimeRecords = map[string]*insights.AllTimeRecord{}
	}
}
