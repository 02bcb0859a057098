package report

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/joshdurbin/garmin-wrapped/internal/garmin"
	"github.com/joshdurbin/garmin-wrapped/internal/store"
)

// memStore is an in-memory Backend for tests
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (m *memStore) Save(ctx context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = payload
	return nil
}

func (m *memStore) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return payload, nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memStore) Close() error { return nil }

// fakeFetcher returns canned data and counts calls; failSections lists
// section fetches that should error. Activity fetches record the bucket
// they were asked for.
type fakeFetcher struct {
	activities   []garmin.Activity
	failSections map[string]bool
	calls        atomic.Int32

	mu      sync.Mutex
	buckets []string
}

func (f *fakeFetcher) fail(section string) error {
	f.calls.Add(1)
	if f.failSections[section] {
		return errors.New(section + " unavailable")
	}
	return nil
}

func (f *fakeFetcher) Activities(ctx context.Context, start, end, bucket string) ([]garmin.Activity, error) {
	f.mu.Lock()
	f.buckets = append(f.buckets, bucket)
	f.mu.Unlock()
	name := "activities"
	if bucket != "" {
		name += "_" + bucket
	}
	if err := f.fail(name); err != nil {
		return nil, err
	}
	var out []garmin.Activity
	for _, a := range f.activities {
		if bucket == "" || garmin.MatchesBucket(a.ActivityType.TypeKey, bucket) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeFetcher) Sleep(ctx context.Context, start, end string) ([]garmin.SleepRecord, error) {
	if err := f.fail("sleep"); err != nil {
		return nil, err
	}
	return []garmin.SleepRecord{{SleepDTO: garmin.SleepDTO{SleepTimeSeconds: 28800}}}, nil
}

func (f *fakeFetcher) Stress(ctx context.Context, start, end string) ([]garmin.StressRecord, error) {
	if err := f.fail("stress"); err != nil {
		return nil, err
	}
	return []garmin.StressRecord{{AvgStressLevel: 30, MaxStressLevel: 80}}, nil
}

func (f *fakeFetcher) HeartRate(ctx context.Context, start, end string) ([]garmin.HeartRateRecord, error) {
	if err := f.fail("heart_rate"); err != nil {
		return nil, err
	}
	return []garmin.HeartRateRecord{{RestingHeartRate: 48, MaxHeartRate: 180}}, nil
}

func (f *fakeFetcher) BodyBattery(ctx context.Context, start, end string) ([]garmin.BodyBatteryRecord, error) {
	if err := f.fail("body_battery"); err != nil {
		return nil, err
	}
	return []garmin.BodyBatteryRecord{{Charged: 70, Drained: 65}}, nil
}

func (f *fakeFetcher) Steps(ctx context.Context, start, end string) ([]garmin.StepsRecord, error) {
	if err := f.fail("steps"); err != nil {
		return nil, err
	}
	return []garmin.StepsRecord{{CalendarDate: "2025-01-01", TotalSteps: 9000}}, nil
}

func (f *fakeFetcher) VO2Max(ctx context.Context, start, end string) ([]garmin.VO2MaxSample, error) {
	if err := f.fail("vo2max"); err != nil {
		return nil, err
	}
	return []garmin.VO2MaxSample{{Date: "2025-01-01", VO2Max: 50}}, nil
}

func (f *fakeFetcher) TrainingStatus(ctx context.Context, start, end string) ([]garmin.TrainingStatusRecord, error) {
	if err := f.fail("training_status"); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeFetcher) PersonalRecords(ctx context.Context) ([]garmin.AllTimeRecord, error) {
	if err := f.fail("personal_records"); err != nil {
		return nil, err
	}
	return []garmin.AllTimeRecord{{TypeID: 5, Value: 1190, StartDate: "2023-04-01"}}, nil
}

func testActivities() []garmin.Activity {
	return []garmin.Activity{
		{
			ActivityName:   "parkrun",
			StartTimeLocal: "2025-02-01 09:00:00",
			Distance:       5000,
			Duration:       1200,
			ActivityType:   garmin.ActivityType{TypeKey: "running"},
		},
		{
			ActivityName:   "sunday ride",
			StartTimeLocal: "2025-02-02 10:00:00",
			Distance:       40000,
			Duration:       5400,
			ActivityType:   garmin.ActivityType{TypeKey: "road_biking"},
		},
	}
}

func newTestGenerator(fetcher *fakeFetcher) (*Generator, *atomic.Int32) {
	var dials atomic.Int32
	dial := func(ctx context.Context, creds garmin.Credentials) (Fetcher, error) {
		dials.Add(1)
		return fetcher, nil
	}
	return NewGenerator(dial, newMemStore()), &dials
}

func TestGenerateFullReport(t *testing.T) {
	fetcher := &fakeFetcher{activities: testActivities()}
	g, _ := newTestGenerator(fetcher)
	creds := garmin.Credentials{Email: "jane.doe@example.com", Password: "pw"}

	rep, cached, err := g.Generate(context.Background(), creds, 2025, []string{"running"}, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if cached {
		t.Error("first generation should not be cached")
	}
	if rep.Year != 2025 {
		t.Errorf("Year = %d", rep.Year)
	}
	if rep.Activities.TotalActivities != 1 {
		t.Errorf("TotalActivities = %d, want 1 (running only)", rep.Activities.TotalActivities)
	}
	if rep.Sleep.NightsTracked != 1 {
		t.Errorf("Sleep = %+v", rep.Sleep)
	}
	if len(rep.Failures) != 0 {
		t.Errorf("Failures = %v", rep.Failures)
	}
	if pr := rep.Activities.PersonalRecords["5k"]; pr == nil {
		t.Error("missing 5k PR")
	}
	// Year 5K of 20:00 is slower than the lifetime 19:50
	if rep.AllTimeBests["5k"] {
		t.Error("5k should not be an all-time best")
	}
}

func TestGenerateDegradesOnSectionFailure(t *testing.T) {
	fetcher := &fakeFetcher{
		activities:   testActivities(),
		failSections: map[string]bool{"sleep": true},
	}
	g, _ := newTestGenerator(fetcher)
	creds := garmin.Credentials{Email: "jane@example.com", Password: "pw"}

	rep, _, err := g.Generate(context.Background(), creds, 2025, []string{"running"}, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(rep.Failures) != 1 || rep.Failures[0] != "sleep" {
		t.Errorf("Failures = %v, want [sleep]", rep.Failures)
	}
	if rep.Sleep == nil || rep.Sleep.NightsTracked != 0 {
		t.Errorf("failed section should be empty, got %+v", rep.Sleep)
	}
	if rep.Stress.DaysTracked != 1 {
		t.Errorf("other sections should survive, Stress = %+v", rep.Stress)
	}
}

func TestGenerateAbortsOnAuthFailure(t *testing.T) {
	dial := func(ctx context.Context, creds garmin.Credentials) (Fetcher, error) {
		return nil, garmin.ErrAuthFailed
	}
	g := NewGenerator(dial, newMemStore())

	_, _, err := g.Generate(context.Background(), garmin.Credentials{Email: "x@y.com"}, 2025, nil, nil)
	if !errors.Is(err, garmin.ErrAuthFailed) {
		t.Fatalf("err = %v, want ErrAuthFailed", err)
	}
}

func TestCacheHitAndTypeSetInvalidation(t *testing.T) {
	fetcher := &fakeFetcher{activities: testActivities()}
	g, dials := newTestGenerator(fetcher)
	creds := garmin.Credentials{Email: "jane@example.com", Password: "pw"}
	ctx := context.Background()

	if _, _, err := g.Generate(ctx, creds, 2025, []string{"running"}, nil); err != nil {
		t.Fatalf("first generate: %v", err)
	}
	firstCalls := fetcher.calls.Load()

	// Same type set in a different order is still a cache hit
	_, cached, err := g.Generate(ctx, creds, 2025, []string{"running", "running"}, nil)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if !cached {
		t.Error("expected cache hit for identical type set")
	}
	if fetcher.calls.Load() != firstCalls {
		t.Error("cache hit should not fetch anything")
	}
	if dials.Load() != 1 {
		t.Errorf("dials = %d, want 1", dials.Load())
	}

	// A different type set regenerates
	_, cached, err = g.Generate(ctx, creds, 2025, []string{"running", "cycling"}, nil)
	if err != nil {
		t.Fatalf("third generate: %v", err)
	}
	if cached {
		t.Error("changed type set should bypass the cache")
	}
	if fetcher.calls.Load() == firstCalls {
		t.Error("regeneration should fetch again")
	}
}

func TestGenerateProgress(t *testing.T) {
	fetcher := &fakeFetcher{activities: testActivities()}
	g, _ := newTestGenerator(fetcher)

	var mu sync.Mutex
	var events []Progress
	progress := func(p Progress) {
		mu.Lock()
		events = append(events, p)
		mu.Unlock()
	}

	_, _, err := g.Generate(context.Background(), garmin.Credentials{Email: "a@b.com", Password: "p"}, 2025, []string{"running"}, progress)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	// Batch start, nine task events, assembly, and completion
	if len(events) != 12 {
		t.Fatalf("events = %d, want 12", len(events))
	}
	if events[0].Stage != "fetching" || events[0].Completed != 0 {
		t.Errorf("first event = %+v", events[0])
	}
	if events[len(events)-2].Stage != "assembling" {
		t.Errorf("penultimate event = %+v", events[len(events)-2])
	}
	last := events[len(events)-1]
	if last.Stage != "complete" || last.Completed != last.Total {
		t.Errorf("last event = %+v", last)
	}
}

func TestCheckActivities(t *testing.T) {
	fetcher := &fakeFetcher{activities: testActivities()}
	g, _ := newTestGenerator(fetcher)

	counts, err := g.CheckActivities(context.Background(), garmin.Credentials{Email: "a@b.com"}, 2025, []string{"running", "cycling", "swimming"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if counts["running"] != 1 || counts["cycling"] != 1 || counts["swimming"] != 0 {
		t.Errorf("counts = %v", counts)
	}
}

func TestRunningPrimarySelection(t *testing.T) {
	fetcher := &fakeFetcher{activities: testActivities()}
	g, _ := newTestGenerator(fetcher)
	creds := garmin.Credentials{Email: "pool@example.com", Password: "pw"}

	rep, _, err := g.Generate(context.Background(), creds, 2025, []string{"running", "cycling"}, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	// Running drives the primary summary when it was requested
	if rep.Activities.TotalActivities != 1 {
		t.Errorf("primary TotalActivities = %d, want 1", rep.Activities.TotalActivities)
	}
	if pr := rep.Activities.PersonalRecords["5k"]; pr == nil || pr.Time != "00:20:00" {
		t.Errorf("5k PR = %+v", rep.Activities.PersonalRecords["5k"])
	}
	// Every selected bucket still gets its own analysis
	if len(rep.ByType) != 2 {
		t.Fatalf("ByType = %v", rep.ByType)
	}
	if rep.ByType["cycling"].TotalActivities != 1 {
		t.Errorf("cycling = %+v", rep.ByType["cycling"])
	}
}

func TestPerBucketActivityFetch(t *testing.T) {
	fetcher := &fakeFetcher{activities: testActivities()}
	g, _ := newTestGenerator(fetcher)
	creds := garmin.Credentials{Email: "buckets@example.com", Password: "pw"}

	_, _, err := g.Generate(context.Background(), creds, 2025, []string{"running", "cycling"}, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	got := map[string]bool{}
	for _, b := range fetcher.buckets {
		got[b] = true
	}
	if !got["running"] || !got["cycling"] || len(fetcher.buckets) != 2 {
		t.Errorf("buckets fetched = %v, want one fetch per selected type", fetcher.buckets)
	}
}

func TestBucketFailureLeavesOtherBucketsIntact(t *testing.T) {
	fetcher := &fakeFetcher{
		activities:   testActivities(),
		failSections: map[string]bool{"activities_cycling": true},
	}
	g, _ := newTestGenerator(fetcher)
	creds := garmin.Credentials{Email: "partial@example.com", Password: "pw"}

	rep, _, err := g.Generate(context.Background(), creds, 2025, []string{"running", "cycling"}, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(rep.Failures) != 1 || rep.Failures[0] != "activities_cycling" {
		t.Errorf("Failures = %v, want [activities_cycling]", rep.Failures)
	}
	if rep.ByType["running"].TotalActivities != 1 {
		t.Errorf("running = %+v, want it unaffected", rep.ByType["running"])
	}
	if rep.ByType["cycling"].TotalActivities != 0 {
		t.Errorf("cycling = %+v, want empty after its fetch failed", rep.ByType["cycling"])
	}
}

func TestPooledSelectionWithoutRunning(t *testing.T) {
	activities := testActivities()
	activities = append(activities, garmin.Activity{
		ActivityName:   "lake swim",
		StartTimeLocal: "2025-07-01 08:00:00",
		Distance:       2000,
		Duration:       2400,
		ActivityType:   garmin.ActivityType{TypeKey: "open_water_swimming"},
	})
	fetcher := &fakeFetcher{activities: activities}
	g, _ := newTestGenerator(fetcher)
	creds := garmin.Credentials{Email: "pool2@example.com", Password: "pw"}

	rep, _, err := g.Generate(context.Background(), creds, 2025, []string{"cycling", "swimming"}, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	// Without running, the selected buckets pool into the primary summary
	if rep.Activities.TotalActivities != 2 {
		t.Errorf("primary TotalActivities = %d, want 2 (pooled)", rep.Activities.TotalActivities)
	}
	if rep.ByType["swimming"].TotalActivities != 1 {
		t.Errorf("swimming = %+v", rep.ByType["swimming"])
	}
}
