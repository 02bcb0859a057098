package garmin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/joshdurbin/garmin-wrapped/internal/logging"
	"golang.org/x/oauth2"
)

const (
	defaultConnectURL = "https://connectapi.garmin.com"
	defaultSSOURL     = "https://sso.garmin.com/sso"
	activityPageSize  = 100
	requestTimeout    = 30 * time.Second
)

// Default retry settings
const (
	defaultMaxRetries     = 4
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 2 * time.Minute
)

// ErrAuthFailed indicates the upstream rejected the account credentials
var ErrAuthFailed = errors.New("garmin authentication failed")

// ErrNoData indicates the API has no record for the requested day
var ErrNoData = errors.New("no data for date")

// Credentials identify a Garmin Connect account
type Credentials struct {
	Email    string
	Password string
}

// Client is an authenticated Garmin Connect API client with automatic retry
type Client struct {
	httpClient *retryablehttp.Client
	token      *oauth2.Token
	connectURL string
	ssoURL     string
}

// RetryConfig holds retry/backoff settings
type RetryConfig struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: defaultMaxRetries,
		MinWait:    defaultInitialBackoff,
		MaxWait:    defaultMaxBackoff,
	}
}

// Option customizes a Client before login
type Option func(*Client)

// WithBaseURLs overrides the Connect and SSO endpoints (for testing)
func WithBaseURLs(connectURL, ssoURL string) Option {
	return func(c *Client) {
		c.connectURL = connectURL
		c.ssoURL = ssoURL
	}
}

// WithRetryConfig overrides the retry/backoff settings
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Client) {
		c.httpClient.RetryMax = cfg.MaxRetries
		c.httpClient.RetryWaitMin = cfg.MinWait
		c.httpClient.RetryWaitMax = cfg.MaxWait
	}
}

// Login authenticates against the Garmin SSO service and exchanges the
// resulting ticket for an OAuth2 bearer token. Rejected credentials return
// ErrAuthFailed; transport failures are returned verbatim.
func Login(ctx context.Context, creds Credentials, opts ...Option) (*Client, error) {
	c := &Client{
		httpClient: newRetryableClient(),
		connectURL: defaultConnectURL,
		ssoURL:     defaultSSOURL,
	}
	for _, opt := range opts {
		opt(c)
	}

	ticket, err := c.signin(ctx, creds)
	if err != nil {
		return nil, err
	}

	token, err := c.exchange(ctx, ticket)
	if err != nil {
		return nil, err
	}
	c.token = token

	logging.Logger.Info().
		Str("email", creds.Email).
		Time("token_expiry", token.Expiry).
		Msg("garmin authentication successful")
	return c, nil
}

func newRetryableClient() *retryablehttp.Client {
	log := logging.Logger
	client := retryablehttp.NewClient()
	client.RetryMax = defaultMaxRetries
	client.RetryWaitMin = defaultInitialBackoff
	client.RetryWaitMax = defaultMaxBackoff
	client.HTTPClient.Timeout = requestTimeout
	client.Logger = &logging.LeveledLogger{}

	// Custom retry policy: retry on 429 and 5xx, never on auth or missing-day responses
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, nil
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return false, nil
		case resp.StatusCode == http.StatusNotFound:
			return false, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			return true, nil
		case resp.StatusCode >= 500:
			return true, nil
		}
		return false, nil
	}

	// Honor Retry-After on 429, otherwise exponential backoff
	client.Backoff = func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if seconds, err := strconv.Atoi(retryAfter); err == nil {
					wait := time.Duration(seconds) * time.Second
					log.Info().Dur("wait", wait).Int("attempt", attemptNum).Msg("rate limited, waiting for Retry-After header")
					return wait
				}
			}
		}
		wait := min * time.Duration(1<<uint(attemptNum))
		if wait > max {
			wait = max
		}
		return wait
	}

	client.RequestLogHook = func(logger retryablehttp.Logger, req *http.Request, retry int) {
		if retry > 0 {
			log.Info().Str("url", req.URL.Path).Int("attempt", retry+1).Msg("retrying request")
		}
		if logging.IsTraceEnabled() {
			log.Debug().Str("method", req.Method).Str("url", req.URL.String()).Msg("request")
		}
	}

	return client
}

// signin posts credentials to the SSO service and returns a service ticket
func (c *Client) signin(ctx context.Context, creds Credentials) (string, error) {
	form := url.Values{
		"username": {creds.Email},
		"password": {creds.Password},
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.ssoURL+"/signin", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating signin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing signin request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("signin: unexpected status code: %d", resp.StatusCode)
	}

	var body struct {
		ServiceTicket string `json:"serviceTicket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding signin response: %w", err)
	}
	if body.ServiceTicket == "" {
		return "", ErrAuthFailed
	}
	return body.ServiceTicket, nil
}

// exchange trades an SSO service ticket for an OAuth2 bearer token
func (c *Client) exchange(ctx context.Context, ticket string) (*oauth2.Token, error) {
	form := url.Values{"ticket": {ticket}}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.connectURL+"/auth/exchange", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing exchange request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange: unexpected status code: %d", resp.StatusCode)
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if body.AccessToken == "" {
		return nil, ErrAuthFailed
	}

	return &oauth2.Token{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}

// getJSON issues an authenticated GET and decodes the response into out.
// 404 and 204 map to ErrNoData so per-day loops can skip silently.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.connectURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		return ErrNoData
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrAuthFailed
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Activities fetches all activities in [start, end] (YYYY-MM-DD, inclusive)
// and filters them to the given type bucket. An empty bucket returns everything.
func (c *Client) Activities(ctx context.Context, start, end, bucket string) ([]Activity, error) {
	var all []Activity
	offset := 0

	for {
		path := fmt.Sprintf("/activitylist-service/activities/search/activities?startDate=%s&endDate=%s&start=%d&limit=%d",
			start, end, offset, activityPageSize)

		var page []Activity
		if err := c.getJSON(ctx, path, &page); err != nil {
			if errors.Is(err, ErrNoData) {
				break
			}
			return nil, fmt.Errorf("fetching activities: %w", err)
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		if len(page) < activityPageSize {
			break
		}
		offset += len(page)
	}

	if bucket == "" {
		return all, nil
	}

	filtered := make([]Activity, 0, len(all))
	for _, a := range all {
		if MatchesBucket(a.ActivityType.TypeKey, bucket) {
			filtered = append(filtered, a)
		}
	}

	logging.Logger.Debug().
		Str("bucket", bucket).
		Int("fetched", len(all)).
		Int("matched", len(filtered)).
		Msg("activities fetched")
	return filtered, nil
}

// forEachDay walks [start, end] one calendar day at a time. Per-day fetch
// failures are logged and skipped; only context cancellation stops the walk.
func forEachDay(ctx context.Context, start, end string, fetch func(date string) error) error {
	from, err := time.Parse("2006-01-02", start)
	if err != nil {
		return fmt.Errorf("parsing start date: %w", err)
	}
	to, err := time.Parse("2006-01-02", end)
	if err != nil {
		return fmt.Errorf("parsing end date: %w", err)
	}

	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		date := d.Format("2006-01-02")
		if err := fetch(date); err != nil && !errors.Is(err, ErrNoData) {
			logging.Logger.Debug().Str("date", date).Err(err).Msg("skipping day")
		}
	}
	return nil
}

// Sleep fetches per-day sleep records, skipping days with no data
func (c *Client) Sleep(ctx context.Context, start, end string) ([]SleepRecord, error) {
	var records []SleepRecord
	err := forEachDay(ctx, start, end, func(date string) error {
		var rec SleepRecord
		if err := c.getJSON(ctx, "/sleep-service/sleep/dailySleepData?date="+date, &rec); err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	return records, err
}

// Stress fetches per-day stress records
func (c *Client) Stress(ctx context.Context, start, end string) ([]StressRecord, error) {
	var records []StressRecord
	err := forEachDay(ctx, start, end, func(date string) error {
		var rec StressRecord
		if err := c.getJSON(ctx, "/wellness-service/wellness/dailyStress/"+date, &rec); err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	return records, err
}

// HeartRate fetches per-day heart rate records
func (c *Client) HeartRate(ctx context.Context, start, end string) ([]HeartRateRecord, error) {
	var records []HeartRateRecord
	err := forEachDay(ctx, start, end, func(date string) error {
		var rec HeartRateRecord
		if err := c.getJSON(ctx, "/wellness-service/wellness/dailyHeartRate?date="+date, &rec); err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	return records, err
}

// BodyBattery fetches per-day body battery records. The API returns an
// array per day; only the first entry carries the daily totals.
func (c *Client) BodyBattery(ctx context.Context, start, end string) ([]BodyBatteryRecord, error) {
	var records []BodyBatteryRecord
	err := forEachDay(ctx, start, end, func(date string) error {
		var day []BodyBatteryRecord
		if err := c.getJSON(ctx, "/wellness-service/wellness/bodyBattery/reports/daily?date="+date, &day); err != nil {
			return err
		}
		if len(day) > 0 {
			records = append(records, day[0])
		}
		return nil
	})
	return records, err
}

// Steps fetches per-day step totals
func (c *Client) Steps(ctx context.Context, start, end string) ([]StepsRecord, error) {
	var records []StepsRecord
	err := forEachDay(ctx, start, end, func(date string) error {
		var rec StepsRecord
		if err := c.getJSON(ctx, "/wellness-service/wellness/dailySummaryChart?date="+date, &rec); err != nil {
			return err
		}
		if rec.CalendarDate == "" {
			rec.CalendarDate = date
		}
		if rec.TotalSteps > 0 {
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// VO2Max fetches per-day VO2max samples, preferring the precise value
func (c *Client) VO2Max(ctx context.Context, start, end string) ([]VO2MaxSample, error) {
	var samples []VO2MaxSample
	err := forEachDay(ctx, start, end, func(date string) error {
		var entries []maxMetricsEntry
		if err := c.getJSON(ctx, fmt.Sprintf("/metrics-service/metrics/maxmet/daily/%s/%s", date, date), &entries); err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		value := entries[0].Generic.VO2MaxPreciseValue
		if value == 0 {
			value = entries[0].Generic.VO2MaxValue
		}
		if value > 0 {
			samples = append(samples, VO2MaxSample{Date: date, VO2Max: value})
		}
		return nil
	})
	return samples, err
}

// TrainingStatus fetches per-day training status records
func (c *Client) TrainingStatus(ctx context.Context, start, end string) ([]TrainingStatusRecord, error) {
	var records []TrainingStatusRecord
	err := forEachDay(ctx, start, end, func(date string) error {
		var rec TrainingStatusRecord
		if err := c.getJSON(ctx, "/metrics-service/metrics/trainingstatus/aggregated/"+date, &rec); err != nil {
			return err
		}
		rec.Date = date
		records = append(records, rec)
		return nil
	})
	return records, err
}

// PersonalRecords fetches the account's all-time personal records
func (c *Client) PersonalRecords(ctx context.Context) ([]AllTimeRecord, error) {
	var records []AllTimeRecord
	if err := c.getJSON(ctx, "/personalrecord-service/personalrecord/prs", &records); err != nil {
		if errors.Is(err, ErrNoData) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching personal records: %w", err)
	}
	return records, nil
}
