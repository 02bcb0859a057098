// Package narrative generates the personalized commentary for a wrapped
// report by prompting a generative language model, with canned fallbacks
// when the model is unavailable.
package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/joshdurbin/garmin-wrapped/internal/logging"
	"github.com/joshdurbin/garmin-wrapped/internal/store"
)

const (
	defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultModel    = "gemini-2.0-flash"
	requestTimeout  = 60 * time.Second
)

// Kind classifies why text generation failed
type Kind int

const (
	KindOK Kind = iota
	KindQuota
	KindExhausted
	KindAuth
	KindOther
)

// classify buckets a generation error by its message text. The upstream
// API reports quota and auth failures through the error body, not codes
// we can rely on.
func classify(err error) Kind {
	if err == nil {
		return KindOK
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return KindQuota
	case strings.Contains(msg, "resource exhausted"):
		return KindExhausted
	case strings.Contains(msg, "api key") || strings.Contains(msg, "authentication"):
		return KindAuth
	default:
		return KindOther
	}
}

var insightsFallbacks = map[Kind]string{
	KindQuota:     "Your year of training speaks for itself! The AI commentary hit its daily quota, but your numbers tell an incredible story of dedication and progress.",
	KindExhausted: "The AI is catching its breath after a busy day. Your stats are impressive enough on their own: every kilometer logged is a testament to your consistency.",
	KindAuth:      "AI commentary is not configured, but no algorithm is needed to see the effort behind these numbers. What a year!",
	KindOther:     "The AI commentary took an unexpected rest day. Your training certainly didn't: these numbers show a year of real commitment.",
}

var forecastFallbacks = map[Kind]string{
	KindQuota:     "The crystal ball hit its daily quota! Keep building on this year's base and next year's numbers will speak for themselves.",
	KindExhausted: "The forecast engine needs a recovery day. Based on this year's trajectory, next year looks bright: keep showing up.",
	KindAuth:      "Goal forecasting is not configured, but the trend line in your own data points one way: up.",
	KindOther:     "The forecast took a detour. Whatever next year holds, this year's consistency is the best predictor of success.",
}

// Unconfigured is returned when no API key is set
const Unconfigured = "AI insights unavailable. Set an API key to enable personalized commentary."

// Texts holds both generated passages for a report
type Texts struct {
	Insights string `json:"insights"`
	Goals    string `json:"goals"`
}

// Service generates and caches narrative text
type Service struct {
	apiKey   string
	model    string
	endpoint string
	client   *retryablehttp.Client
	store    store.Backend
}

// Option customizes a Service
type Option func(*Service)

// WithEndpoint overrides the model API base URL (for testing)
func WithEndpoint(url string) Option {
	return func(s *Service) { s.endpoint = url }
}

// WithModel selects a different model
func WithModel(model string) Option {
	return func(s *Service) { s.model = model }
}

// NewService builds a narrative service. An empty apiKey produces a
// service that always returns the unconfigured message.
func NewService(apiKey string, backend store.Backend, opts ...Option) *Service {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 2 * time.Second
	client.RetryWaitMax = 30 * time.Second
	client.HTTPClient.Timeout = requestTimeout
	client.Logger = &logging.LeveledLogger{}

	s := &Service{
		apiKey:   apiKey,
		model:    defaultModel,
		endpoint: defaultEndpoint,
		client:   client,
		store:    backend,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// generate prompts the model and returns the first candidate's text
func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", s.endpoint, s.model, s.apiKey)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if out.Error != nil {
		return "", fmt.Errorf("model error %d (%s): %s", out.Error.Code, out.Error.Status, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty model response")
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

// Insights produces the year-in-review commentary for a report. Failures
// degrade to a canned passage matched to the failure kind.
func (s *Service) Insights(ctx context.Context, reportJSON []byte) string {
	if s.apiKey == "" {
		return Unconfigured
	}

	prompt := "You are an enthusiastic running coach writing a year-in-review. " +
		"Based on the following training data, write 2-3 upbeat paragraphs celebrating " +
		"the athlete's year. Use markdown **bold** for standout numbers. Data:\n" + string(reportJSON)

	text, err := s.generate(ctx, prompt)
	if err != nil {
		kind := classify(err)
		logging.Logger.Warn().Err(err).Int("kind", int(kind)).Msg("insights generation failed, using fallback")
		return insightsFallbacks[kind]
	}
	return text
}

// Goals produces the next-year forecast for a report, degrading to a
// canned passage on failure.
func (s *Service) Goals(ctx context.Context, reportJSON []byte) string {
	if s.apiKey == "" {
		return Unconfigured
	}

	prompt := "You are a pragmatic running coach. Based on the following year of " +
		"training data, suggest 2-3 realistic goals for next year in short markdown " +
		"bullet points. Data:\n" + string(reportJSON)

	text, err := s.generate(ctx, prompt)
	if err != nil {
		kind := classify(err)
		logging.Logger.Warn().Err(err).Int("kind", int(kind)).Msg("goals generation failed, using fallback")
		return forecastFallbacks[kind]
	}
	return text
}

// TextsFor returns cached narrative text for the account if present,
// otherwise generates both passages and caches them.
func (s *Service) TextsFor(ctx context.Context, email string, reportJSON []byte) Texts {
	key := store.InsightsKey(email)

	if cached, err := s.store.Load(ctx, key); err == nil {
		var texts Texts
		if json.Unmarshal(cached, &texts) == nil && texts.Insights != "" {
			logging.Logger.Debug().Str("key", key).Msg("narrative cache hit")
			return texts
		}
	}

	texts := Texts{
		Insights: s.Insights(ctx, reportJSON),
		Goals:    s.Goals(ctx, reportJSON),
	}

	if texts.Insights != Unconfigured {
		if payload, err := json.Marshal(texts); err == nil {
			if err := s.store.Save(ctx, key, payload); err != nil {
				logging.Logger.Warn().Err(err).Str("key", key).Msg("failed to cache narrative text")
			}
		}
	}
	return texts
}

// Invalidate drops any cached narrative text for the account
func (s *Service) Invalidate(ctx context.Context, email string) error {
	return s.store.Delete(ctx, store.InsightsKey(email))
}

// MarkdownToHTML converts the subset of markdown the model emits: bold
// spans, bullet lines, and paragraph breaks.
func MarkdownToHTML(md string) string {
	var b strings.Builder
	inList := false

	flushList := func() {
		if inList {
			b.WriteString("</ul>")
			inList = false
		}
	}

	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flushList()
		case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* "):
			if !inList {
				b.WriteString("<ul>")
				inList = true
			}
			b.WriteString("<li>" + boldSpans(line[2:]) + "</li>")
		default:
			flushList()
			b.WriteString("<p>" + boldSpans(line) + "</p>")
		}
	}
	flushList()
	return b.String()
}

// boldSpans replaces **text** pairs with <strong> tags
func boldSpans(s string) string {
	var b strings.Builder
	open := false
	for {
		i := strings.Index(s, "**")
		if i < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:i])
		if open {
			b.WriteString("</strong>")
		} else {
			b.WriteString("<strong>")
		}
		open = !open
		s = s[i+2:]
	}
	if open {
		// Unbalanced marker: close the span rather than leak the tag
		b.WriteString("</strong>")
	}
	return b.String()
}
