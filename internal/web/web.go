package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gcalexport/internal/config"
	"gcalexport/internal/export"
	appLog "gcalexport/internal/log"
	"gcalexport/internal/model"
	"gcalexport/internal/source"
)

const (
	// noTitle stands in for events without a SUMMARY in listings.
	noTitle = "(no title)"

	displayDateTime = "02.01.2006 15:04"
	displayDate     = "02.01.2006"

	eventsCacheTTL = 30 * time.Second
	// maxCachedQueries bounds the number of distinct /api/events queries kept.
	maxCachedQueries = 16
)

// Server provides the HTTP API: health, event listing, ICS download and
// Prometheus metrics.
type Server struct {
	cfg      *config.Config
	events   source.Source
	exporter *export.Exporter
	mux      *http.ServeMux

	// Now defaults to time.Now; it anchors relative dates and the cache TTL.
	Now func() time.Time

	// In-memory cache for /api/events responses to avoid redundant
	// load/parse/expand work on every HTTP request.
	eventsMu    sync.RWMutex
	eventsCache map[eventsKey]*eventsCache
}

// NewServer constructs a new Server. ICS downloads use exporter, listings
// read events directly.
func NewServer(cfg *config.Config, events source.Source, exporter *export.Exporter) *Server {
	s := &Server{
		cfg:         cfg,
		events:      events,
		exporter:    exporter,
		mux:         http.NewServeMux(),
		eventsCache: make(map[eventsKey]*eventsCache),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password counts as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="gcalexport", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /export.ics", s.handleExport)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Calendar        string     `json:"calendar"`
	RangeStart      time.Time  `json:"range_start"`
	RangeEnd        time.Time  `json:"range_end"`
	DisplayTimeZone string     `json:"display_timezone"`
	Count           int        `json:"count"`
	Events          []eventDTO `json:"events"`
}

// eventDTO is one row of the event listing.
type eventDTO struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	AllDay      bool   `json:"all_day"`
	Start       string `json:"start"`
	End         string `json:"end"`
	// StartDisplay and EndDisplay are formatted for people, e.g. "01.05.2023 02:00".
	StartDisplay string `json:"start_display"`
	EndDisplay   string `json:"end_display"`
}

type eventsKey struct {
	calendar string
	from, to time.Time
}

// eventsCache holds a cached /api/events response and its timestamp.
type eventsCache struct {
	resp      eventsResponse
	updatedAt time.Time
}

// handleEvents lists the events of a calendar.
//
// GET /api/events?from=2023-05-01&to=2023-05-31&calendar=primary
//   - from, to: dates as accepted by the config (defaults: configured range)
//   - calendar: calendar ID (default: configured calendar)
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q, err := s.queryFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := eventsKey{calendar: q.CalendarID, from: q.Start, to: q.End}
	now := s.now()

	s.eventsMu.RLock()
	ec := s.eventsCache[key]
	s.eventsMu.RUnlock()
	if ec != nil && now.Sub(ec.updatedAt) < eventsCacheTTL {
		writeJSON(w, http.StatusOK, ec.resp)
		return
	}

	appLog.Info("api events request",
		"calendar", q.CalendarID,
		"range_start", q.Start.Format(time.RFC3339),
		"range_end", q.End.Format(time.RFC3339),
	)

	events, err := s.events.Events(r.Context(), q)
	if err != nil {
		s.writeSourceError(w, err)
		return
	}

	loc := s.cfg.Location()
	dtos := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		dtos = append(dtos, toDTO(ev, loc))
	}

	resp := eventsResponse{
		Calendar:        q.CalendarID,
		RangeStart:      q.Start,
		RangeEnd:        q.End,
		DisplayTimeZone: loc.String(),
		Count:           len(dtos),
		Events:          dtos,
	}

	s.storeEvents(key, resp, now)

	writeJSON(w, http.StatusOK, resp)
}

// storeEvents caches resp under key. Expired entries are dropped first; if
// the cache is still full the oldest entry makes room.
func (s *Server) storeEvents(key eventsKey, resp eventsResponse, now time.Time) {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()

	var oldestKey eventsKey
	var oldest time.Time
	for k, ec := range s.eventsCache {
		if now.Sub(ec.updatedAt) >= eventsCacheTTL {
			delete(s.eventsCache, k)
			continue
		}
		if oldest.IsZero() || ec.updatedAt.Before(oldest) {
			oldestKey, oldest = k, ec.updatedAt
		}
	}
	if _, ok := s.eventsCache[key]; !ok && len(s.eventsCache) >= maxCachedQueries {
		delete(s.eventsCache, oldestKey)
	}

	s.eventsCache[key] = &eventsCache{resp: resp, updatedAt: now}
}

// handleExport streams the calendar as text/calendar. The document is
// rendered to memory first so an encoding error still yields a clean 500.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q, err := s.queryFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var buf bytes.Buffer
	n, err := s.exporter.ExportTo(r.Context(), &buf, q)
	if err != nil {
		s.writeSourceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": filepath.Base(s.cfg.ExportFilename),
	}))
	w.Header().Set("X-Event-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) queryFromRequest(r *http.Request) (source.Query, error) {
	params := r.URL.Query()

	cfg := *s.cfg
	if v := params.Get("from"); v != "" {
		cfg.DateStart = v
	}
	if v := params.Get("to"); v != "" {
		cfg.DateEnd = v
	}
	calendar := cfg.Calendar
	if v := params.Get("calendar"); v != "" {
		calendar = v
	}

	rng, err := cfg.ResolveRange(s.now())
	if err != nil {
		return source.Query{}, err
	}
	return export.Query(rng, calendar), nil
}

func (s *Server) writeSourceError(w http.ResponseWriter, err error) {
	if errors.Is(err, source.ErrUnknownCalendar) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	appLog.Error("api request failed", err)
	writeError(w, http.StatusInternalServerError, "failed to load events")
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func toDTO(ev model.CalendarEvent, loc *time.Location) eventDTO {
	d := eventDTO{
		ID:     ev.ID,
		AllDay: ev.AllDay(),
		Start:  ev.Start.String(),
		End:    ev.End.String(),
	}

	d.Summary = noTitle
	if ev.Summary != nil && *ev.Summary != "" {
		d.Summary = *ev.Summary
	}
	if ev.Description != nil {
		d.Description = *ev.Description
	}

	if d.AllDay {
		// Dates are calendar days; shifting them into loc could move the day.
		d.StartDisplay = ev.Start.Time().Format(displayDate)
		d.EndDisplay = ev.End.Time().Format(displayDate)
	} else {
		d.StartDisplay = ev.Start.Time().In(loc).Format(displayDateTime)
		d.EndDisplay = ev.End.Time().In(loc).Format(displayDateTime)
	}
	return d
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
