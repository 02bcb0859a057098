package garmin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

// fastRetry keeps test retries from sleeping
func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, MinWait: time.Millisecond, MaxWait: 5 * time.Millisecond}
}

// newTestServer stands up an SSO plus Connect API endpoint that accepts
// any login and delegates API paths to handler.
func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/signin", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"serviceTicket": "ticket-123"})
	})
	mux.HandleFunc("/auth/exchange", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "token-abc", "expires_in": 3600})
	})
	if handler != nil {
		mux.HandleFunc("/", handler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testLogin(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	client, err := Login(context.Background(), Credentials{Email: "a@b.com", Password: "pw"},
		WithBaseURLs(srv.URL, srv.URL), WithRetryConfig(fastRetry()))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return client
}

func TestLoginSuccess(t *testing.T) {
	srv := newTestServer(t, nil)
	client := testLogin(t, srv)
	if client.token.AccessToken != "token-abc" {
		t.Errorf("token = %q, want token-abc", client.token.AccessToken)
	}
}

func TestLoginRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/signin", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := Login(context.Background(), Credentials{Email: "a@b.com", Password: "bad"},
		WithBaseURLs(srv.URL, srv.URL), WithRetryConfig(fastRetry()))
	if err != ErrAuthFailed {
		t.Fatalf("err = %v, want ErrAuthFailed", err)
	}
}

func TestActivitiesPagingAndFilter(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		var page []Activity
		if start == 0 {
			// Full page forces a second fetch
			for i := 0; i < activityPageSize; i++ {
				typeKey := "running"
				if i%2 == 1 {
					typeKey = "cycling"
				}
				page = append(page, Activity{
					ActivityID:   int64(i),
					ActivityType: ActivityType{TypeKey: typeKey},
				})
			}
		} else {
			page = []Activity{{ActivityID: 999, ActivityType: ActivityType{TypeKey: "trail_running"}}}
		}
		json.NewEncoder(w).Encode(page)
	})

	client := testLogin(t, srv)
	got, err := client.Activities(context.Background(), "2025-01-01", "2025-12-31", BucketRunning)
	if err != nil {
		t.Fatalf("activities: %v", err)
	}
	// Half of the first page plus the trail run on the second
	want := activityPageSize/2 + 1
	if len(got) != want {
		t.Errorf("got %d activities, want %d", len(got), want)
	}
}

func TestSleepSkipsMissingDays(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "2025-06-02" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"dailySleepDTO": {"sleepTimeSeconds": 28800}}`)
	})

	client := testLogin(t, srv)
	records, err := client.Sleep(context.Background(), "2025-06-01", "2025-06-03")
	if err != nil {
		t.Fatalf("sleep: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2 (missing day skipped)", len(records))
	}
}

func TestRetryOn500(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode([]AllTimeRecord{{TypeID: 5, Value: 1500}})
	})

	client := testLogin(t, srv)
	records, err := client.PersonalRecords(context.Background())
	if err != nil {
		t.Fatalf("personal records: %v", err)
	}
	if len(records) != 1 || records[0].TypeID != 5 {
		t.Errorf("records = %+v", records)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls.Load())
	}
}

func TestNoRetryOnAuthFailure(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	client := testLogin(t, srv)
	_, err := client.PersonalRecords(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 401)", calls.Load())
	}
}
