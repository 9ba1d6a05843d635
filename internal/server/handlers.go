package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"GoRowSearch/internal/condition"
	"GoRowSearch/internal/scan"
	"GoRowSearch/internal/search"
	"GoRowSearch/internal/store"
)

const defaultSearchLimit = 10

// Handler holds HTTP handlers for the GoRowSearch API.
type Handler struct {
	mgr      *IndexManager
	gatherer prometheus.Gatherer
	timeout  time.Duration
	logger   *slog.Logger
}

// NewHandler creates a Handler backed by mgr. Metrics are served from
// gatherer when it is non-nil.
func NewHandler(mgr *IndexManager, gatherer prometheus.Gatherer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		mgr:      mgr,
		gatherer: gatherer,
		timeout:  30 * time.Second,
		logger:   logger.With("component", "http"),
	}
}

// Router returns the chi router with every API route registered.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(recovery(h.logger))
	r.Use(chimw.RequestID)
	r.Use(chimw.Timeout(h.timeout))
	r.Use(requestLogging(h.logger))

	r.Get("/health", h.handleHealth)
	r.Get("/info", h.handleInfo)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/rows", func(r chi.Router) {
		r.Get("/{key}", h.handleGetRow)
		r.Put("/{key}", h.handlePutRow)
		r.Delete("/{key}", h.handleDeleteRow)
	})

	r.Post("/refresh", h.handleRefresh)
	r.Post("/search", h.handleSearch)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mgr.Info())
}

// --- Rows ---

type rowResponse struct {
	Key       string         `json:"key"`
	Version   uint64         `json:"version"`
	Fields    map[string]any `json:"fields"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func toRowResponse(r *store.Row) rowResponse {
	return rowResponse{Key: r.Key, Version: r.Version, Fields: r.Fields, UpdatedAt: r.UpdatedAt}
}

func (h *Handler) handleGetRow(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var fields []string
	if raw := r.URL.Query().Get("fields"); raw != "" {
		fields = strings.Split(raw, ",")
	}
	row, err := h.mgr.Store.Lookup(r.Context(), key, fields)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRowResponse(row))
}

func (h *Handler) handlePutRow(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req struct {
		Fields map[string]any `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Fields == nil {
		writeError(w, http.StatusBadRequest, "fields are required")
		return
	}

	version, err := h.mgr.Put(r.Context(), key, req.Fields)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !h.refreshRequested(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":     key,
		"version": version,
	})
}

func (h *Handler) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.mgr.Delete(r.Context(), key); err != nil {
		h.fail(w, r, err)
		return
	}
	if !h.refreshRequested(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
		"key":    key,
	})
}

// refreshRequested publishes a new snapshot when the caller passed
// ?refresh=true. It reports false after writing an error response.
func (h *Handler) refreshRequested(w http.ResponseWriter, r *http.Request) bool {
	if r.URL.Query().Get("refresh") != "true" {
		return true
	}
	if _, err := h.mgr.Refresh(); err != nil {
		h.fail(w, r, err)
		return false
	}
	return true
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := h.mgr.Refresh()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "refreshed",
		"generation": h.mgr.Snapshots.Generation(),
		"rows":       snap.DocCount(),
	})
}

// --- Search ---

type searchRequest struct {
	Condition json.RawMessage `json:"condition"`
	Filter    json.RawMessage `json:"filter"`
	Sort      search.Sort     `json:"sort"`
	Cursor    string          `json:"cursor"`
	Limit     int             `json:"limit"`
	Fields    []string        `json:"fields"`
}

type searchResponse struct {
	Rows      []rowResponse `json:"rows"`
	Cursor    string        `json:"cursor,omitempty"`
	Truncated bool          `json:"truncated"`
	Stats     scanStats     `json:"stats"`
	TookMs    int64         `json:"took_ms"`
}

type scanStats struct {
	Fetches int `json:"fetches"`
	Hits    int `json:"hits"`
	Stale   int `json:"stale"`
	Emitted int `json:"emitted"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sreq, err := req.build()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	start := time.Now()
	page, err := h.mgr.Search(r.Context(), sreq)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSearchResponse(page, time.Since(start)))
}

func (req searchRequest) build() (SearchRequest, error) {
	out := SearchRequest{
		Sort:   req.Sort,
		Limit:  req.Limit,
		Fields: req.Fields,
	}
	if out.Limit == 0 {
		out.Limit = defaultSearchLimit
	}

	if len(req.Condition) == 0 {
		out.Condition = &condition.All{}
	} else {
		c, err := condition.Decode(req.Condition)
		if err != nil {
			return out, err
		}
		out.Condition = c
	}
	if len(req.Filter) > 0 {
		f, err := condition.Decode(req.Filter)
		if err != nil {
			return out, err
		}
		out.Filter = f
	}
	if req.Cursor != "" {
		cur, err := search.DecodeCursor(req.Cursor)
		if err != nil {
			return out, err
		}
		out.Cursor = &cur
	}
	return out, nil
}

func newSearchResponse(page *scan.Page, took time.Duration) searchResponse {
	resp := searchResponse{
		Rows:      make([]rowResponse, len(page.Rows)),
		Truncated: page.Truncated,
		Stats: scanStats{
			Fetches: page.Stats.Fetches,
			Hits:    page.Stats.Hits,
			Stale:   page.Stats.Stale,
			Emitted: page.Stats.Emitted,
		},
		TookMs: took.Milliseconds(),
	}
	for i, row := range page.Rows {
		resp.Rows[i] = toRowResponse(row)
	}
	if page.Cursor != nil {
		resp.Cursor = page.Cursor.Encode()
	}
	return resp
}

// fail writes err with the status its type maps to. Server errors are
// logged; client errors are not.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"request_id", chimw.GetReqID(r.Context()),
			"error", err,
		)
	}
	writeError(w, status, err.Error())
}
