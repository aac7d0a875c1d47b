package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/IsaiahDupree/EverReach-sub008/internal/engine"
	"github.com/IsaiahDupree/EverReach-sub008/internal/store"
	"github.com/IsaiahDupree/EverReach-sub008/internal/warmth"
)

// maxBulkSize caps the number of contact ids per bulk recompute request.
const maxBulkSize = 200

// contactJSON is the cached warmth view returned by recompute endpoints.
type contactJSON struct {
	ContactID   string `json:"contact_id"`
	CachedScore int    `json:"cached_score"`
	Band        string `json:"band"`
	Mode        string `json:"mode"`
	CachedAt    *int64 `json:"cached_at"`
}

func contactView(c *store.Contact) contactJSON {
	return contactJSON{
		ContactID:   c.ID,
		CachedScore: c.CachedScore,
		Band:        string(c.Band),
		Mode:        string(c.Mode),
		CachedAt:    c.CachedAt,
	}
}

// statusFor maps engine/store errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict), errors.Is(err, engine.ErrStaleEvent), errors.Is(err, store.ErrExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleInitContact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
		Mode        string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Mode != "" && !warmth.ValidMode(warmth.Mode(req.Mode)) {
		writeError(w, http.StatusBadRequest, "invalid mode")
		return
	}

	mode := s.defaultMode
	if req.Mode != "" {
		mode = warmth.Mode(req.Mode)
	}

	c := &store.Contact{
		ID:          req.ID,
		DisplayName: req.DisplayName,
		Mode:        mode,
	}
	if err := s.db.CreateContact(c); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	// Seed the cache so the contact shows a score immediately.
	refreshed, err := s.engine.RecomputeOne(r.Context(), c.ID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, contactView(refreshed))
}

func (s *Server) handleRecomputeOne(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactID")

	c, err := s.engine.RecomputeOne(r.Context(), contactID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, contactView(c))
}

func (s *Server) handleRecomputeBulk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContactIDs []string `json:"contact_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.ContactIDs) == 0 {
		writeError(w, http.StatusBadRequest, "contact_ids required")
		return
	}
	if len(req.ContactIDs) > maxBulkSize {
		writeError(w, http.StatusBadRequest, "too many contact_ids (max 200)")
		return
	}

	type resultJSON struct {
		ID     string `json:"id"`
		Warmth int    `json:"warmth,omitempty"`
		Band   string `json:"warmth_band,omitempty"`
		Error  string `json:"error,omitempty"`
	}

	// Per-contact failures stay per-contact; the rest of the batch runs.
	results := make([]resultJSON, 0, len(req.ContactIDs))
	for _, id := range req.ContactIDs {
		c, err := s.engine.RecomputeOne(r.Context(), id)
		if err != nil {
			results = append(results, resultJSON{ID: id, Error: err.Error()})
			continue
		}
		results = append(results, resultJSON{ID: id, Warmth: c.CachedScore, Band: string(c.Band)})
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactID")

	var req struct {
		SourceKey  string   `json:"source_key"`
		OccurredAt int64    `json:"occurred_at"` // unix ms
		Channel    string   `json:"channel"`
		Weight     *float64 `json:"weight"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.SourceKey == "" {
		writeError(w, http.StatusBadRequest, "source_key required")
		return
	}

	occurred := time.Now()
	if req.OccurredAt > 0 {
		occurred = time.UnixMilli(req.OccurredAt)
	}

	// The caller owns weight policy; the channel table is the fallback.
	weight := warmth.WeightFor(s.weights, req.Channel)
	if req.Weight != nil {
		weight = *req.Weight
	}

	res, err := s.engine.ApplyEvent(r.Context(), contactID, engine.Event{
		SourceKey:  req.SourceKey,
		OccurredAt: occurred,
		Weight:     weight,
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"applied":      res.Applied,
		"amplitude":    res.Contact.Amplitude,
		"cached_score": res.Contact.CachedScore,
		"band":         string(res.Contact.Band),
		"cached_at":    res.Contact.CachedAt,
	})
}

func (s *Server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactID")

	c, err := s.db.GetContact(contactID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"current_mode":  string(c.Mode),
		"current_score": c.CachedScore,
		"current_band":  string(c.Band),
	})
}

func (s *Server) handleSwitchMode(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactID")

	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !warmth.ValidMode(warmth.Mode(req.Mode)) {
		writeError(w, http.StatusBadRequest, "invalid mode")
		return
	}

	sw, err := s.engine.SwitchMode(r.Context(), contactID, warmth.Mode(req.Mode))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode_before":  string(sw.ModeBefore),
		"mode_after":   string(sw.ModeAfter),
		"score_before": sw.ScoreBefore,
		"score_after":  sw.ScoreAfter,
		"band_after":   string(sw.BandAfter),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	total, err := s.db.CountContacts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	byBand, err := s.db.CountByBand()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	avg, err := s.db.AverageScore()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	attention, err := s.db.CountNeedingAttention(30)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	bands := make(map[string]int, 5)
	for _, b := range warmth.Bands() {
		bands[string(b)] = byBand[b]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_contacts":             total,
		"by_band":                    bands,
		"average_score":              avg,
		"contacts_needing_attention": attention,
		"last_updated_at":            time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleModes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"modes": warmth.ModeCatalogue(),
	})
}
