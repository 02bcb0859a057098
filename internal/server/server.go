// Package server exposes the wrapped report pipeline over HTTP: session
// login, report generation with server-sent progress events, and story
// card formatting.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/joshdurbin/garmin-wrapped/internal/garmin"
	"github.com/joshdurbin/garmin-wrapped/internal/logging"
	"github.com/joshdurbin/garmin-wrapped/internal/narrative"
	"github.com/joshdurbin/garmin-wrapped/internal/report"
	"github.com/joshdurbin/garmin-wrapped/internal/story"
)

const sessionName = "wrapped-session"

// Session value keys
const (
	sessionEmail    = "email"
	sessionPassword = "password"
)

// Server handles the wrapped API surface
type Server struct {
	router    chi.Router
	sessions  *sessions.CookieStore
	generator *report.Generator
	narrative *narrative.Service
}

// New builds a server. sessionKey signs the session cookies and must be
// at least 32 bytes.
func New(sessionKey []byte, generator *report.Generator, narrativeSvc *narrative.Service) *Server {
	store := sessions.NewCookieStore(sessionKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int((24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	s := &Server{
		sessions:  store,
		generator: generator,
		narrative: narrativeSvc,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.Get("/check-activities", s.handleCheckActivities)
		r.Get("/generate-wrapped", s.handleGenerateWrapped)
		r.Get("/format-stories", s.handleFormatStories)
		r.Get("/wrapped-data", s.handleWrappedData)
		r.Post("/clear-cache", s.handleClearCache)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Logger.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// credentials pulls the logged-in account out of the session
func (s *Server) credentials(r *http.Request) (garmin.Credentials, bool) {
	session, err := s.sessions.Get(r, sessionName)
	if err != nil {
		return garmin.Credentials{}, false
	}
	email, _ := session.Values[sessionEmail].(string)
	password, _ := session.Values[sessionPassword].(string)
	if email == "" || password == "" {
		return garmin.Credentials{}, false
	}
	return garmin.Credentials{Email: email, Password: password}, true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	creds := garmin.Credentials{Email: body.Email, Password: body.Password}
	if _, err := s.generator.Dial(r.Context(), creds); err != nil {
		if errors.Is(err, garmin.ErrAuthFailed) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		logging.Logger.Error().Err(err).Msg("login failed")
		writeError(w, http.StatusBadGateway, "could not reach Garmin")
		return
	}

	session, _ := s.sessions.Get(r, sessionName)
	session.Values[sessionEmail] = body.Email
	session.Values[sessionPassword] = body.Password
	if err := session.Save(r, w); err != nil {
		writeError(w, http.StatusInternalServerError, "could not save session")
		return
	}

	logging.Logger.Info().Str("email", body.Email).Msg("login successful")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := s.sessions.Get(r, sessionName)
	session.Options.MaxAge = -1
	session.Values = map[any]any{}
	if err := session.Save(r, w); err != nil {
		writeError(w, http.StatusInternalServerError, "could not clear session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestYear reads the year query parameter, defaulting to last year
// during January and the current year otherwise.
func requestYear(r *http.Request) (int, error) {
	now := time.Now()
	year := now.Year()
	if now.Month() == time.January {
		year--
	}
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 2000 || parsed > now.Year() {
			return 0, fmt.Errorf("invalid year: %q", raw)
		}
		year = parsed
	}
	return year, nil
}

// requestBuckets reads the comma-separated types query parameter
func requestBuckets(r *http.Request) []string {
	raw := r.URL.Query().Get("types")
	if raw == "" {
		return []string{garmin.BucketRunning}
	}
	var buckets []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			buckets = append(buckets, t)
		}
	}
	if len(buckets) == 0 {
		return []string{garmin.BucketRunning}
	}
	return buckets
}

func (s *Server) handleCheckActivities(w http.ResponseWriter, r *http.Request) {
	creds, ok := s.credentials(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	year, err := requestYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	counts, err := s.generator.CheckActivities(r.Context(), creds, year, requestBuckets(r))
	if err != nil {
		if errors.Is(err, garmin.ErrAuthFailed) {
			writeError(w, http.StatusUnauthorized, "session expired")
			return
		}
		logging.Logger.Error().Err(err).Msg("activity check failed")
		writeError(w, http.StatusBadGateway, "could not fetch activities")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": year, "counts": counts})
}

// sseEvent is one server-sent event payload
type sseEvent struct {
	Type     string           `json:"type"`
	Progress *report.Progress `json:"progress,omitempty"`
	Report   any              `json:"report,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event sseEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}

// handleGenerateWrapped streams generation progress as server-sent
// events and finishes with the complete report.
func (s *Server) handleGenerateWrapped(w http.ResponseWriter, r *http.Request) {
	creds, ok := s.credentials(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	year, err := requestYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Progress events funnel through a buffered channel; a slow client
	// drops updates instead of stalling the worker pool.
	events := make(chan report.Progress, 32)
	progress := func(p report.Progress) {
		select {
		case events <- p:
		default:
		}
	}

	type result struct {
		report *report.YearlyReport
		cached bool
		err    error
	}
	done := make(chan result, 1)

	go func() {
		rep, cached, err := s.generator.Generate(r.Context(), creds, year, requestBuckets(r), progress)
		done <- result{rep, cached, err}
	}()

	for {
		select {
		case p := <-events:
			writeSSE(w, flusher, sseEvent{Type: "progress", Progress: &p})
		case res := <-done:
			// Drain any progress queued before completion
			for {
				select {
				case p := <-events:
					writeSSE(w, flusher, sseEvent{Type: "progress", Progress: &p})
					continue
				default:
				}
				break
			}
			if res.err != nil {
				logging.Logger.Error().Err(res.err).Msg("report generation failed")
				msg := "report generation failed"
				if errors.Is(res.err, garmin.ErrAuthFailed) {
					msg = "session expired"
				}
				writeSSE(w, flusher, sseEvent{Type: "error", Error: msg})
				return
			}
			writeSSE(w, flusher, sseEvent{Type: "complete", Report: res.report})
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleFormatStories(w http.ResponseWriter, r *http.Request) {
	creds, ok := s.credentials(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	year, err := requestYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	unit := story.UnitKM
	if r.URL.Query().Get("unit") == story.UnitMI {
		unit = story.UnitMI
	}

	rep, ok := s.generator.Cached(r.Context(), creds.Email, year, requestBuckets(r))
	if !ok {
		writeError(w, http.StatusNotFound, "no report generated yet")
		return
	}

	reportJSON, err := json.Marshal(rep)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not encode report")
		return
	}
	texts := s.narrative.TextsFor(r.Context(), creds.Email, reportJSON)

	cards := story.Build(rep, unit,
		narrative.MarkdownToHTML(texts.Insights),
		narrative.MarkdownToHTML(texts.Goals))
	writeJSON(w, http.StatusOK, map[string]any{"unit": unit, "cards": cards})
}

// handleWrappedData returns the cached raw report for the requested year
// and activity types, without story formatting.
func (s *Server) handleWrappedData(w http.ResponseWriter, r *http.Request) {
	creds, ok := s.credentials(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	year, err := requestYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep, ok := s.generator.Cached(r.Context(), creds.Email, year, requestBuckets(r))
	if !ok {
		writeError(w, http.StatusNotFound, "no data available")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	creds, ok := s.credentials(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}

	if err := s.generator.Invalidate(r.Context(), creds.Email); err != nil {
		logging.Logger.Warn().Err(err).Msg("report cache clear failed")
		writeError(w, http.StatusInternalServerError, "could not clear cache")
		return
	}
	if err := s.narrative.Invalidate(r.Context(), creds.Email); err != nil {
		logging.Logger.Warn().Err(err).Msg("narrative cache clear failed")
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
