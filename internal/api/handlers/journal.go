package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/wonny/flof/backend/internal/audit"
	"github.com/wonny/flof/backend/pkg/logger"
	"github.com/wonny/flof/backend/pkg/redis"
)

// JournalHandler serves the trade and rejection journal
type JournalHandler struct {
	store      audit.Store
	cache      *redis.Cache
	instrument string
	loc        *time.Location
	logger     *logger.Logger
}

// NewJournalHandler creates a new journal handler. cache may be nil.
func NewJournalHandler(store audit.Store, cache *redis.Cache, instrument string, loc *time.Location, log *logger.Logger) *JournalHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &JournalHandler{
		store:      store,
		cache:      cache,
		instrument: instrument,
		loc:        loc,
		logger:     log,
	}
}

// GetTrades returns journaled trades, newest last
// GET /api/journal/trades?limit=50
func (h *JournalHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.store.ListTrades(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list trades")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve trades")
		return
	}

	trades = tail(trades, parseLimit(r))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(trades),
		"trades": trades,
	})
}

// GetRejections returns journaled rejections, newest last
// GET /api/journal/rejections?limit=50
func (h *JournalHandler) GetRejections(w http.ResponseWriter, r *http.Request) {
	rejections, err := h.store.ListRejections(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list rejections")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve rejections")
		return
	}

	rejections = tail(rejections, parseLimit(r))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":      len(rejections),
		"rejections": rejections,
	})
}

// GetSummary returns performance statistics over the journal (cached)
// GET /api/journal/summary
func (h *JournalHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	load := func() (interface{}, error) {
		trades, err := h.store.ListTrades(ctx)
		if err != nil {
			return nil, err
		}
		return audit.Summarize(trades), nil
	}

	if h.cache == nil {
		summary, err := load()
		if err != nil {
			h.logger.WithError(err).Error("Failed to summarize journal")
			respondError(w, http.StatusInternalServerError, "Failed to summarize journal")
			return
		}
		respondJSON(w, http.StatusOK, summary)
		return
	}

	var summary audit.Summary
	key := redis.SummaryKey(h.instrument, time.Now().In(h.loc).Format("2006-01-02"))
	if err := h.cache.GetOrSet(ctx, key, &summary, redis.TTLSummary, load); err != nil {
		h.logger.WithError(err).Error("Failed to summarize journal")
		respondError(w, http.StatusInternalServerError, "Failed to summarize journal")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// parseLimit reads ?limit= (0 = all)
func parseLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func tail[T any](s []T, n int) []T {
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}
