package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/radiusdt/storefront-notify/internal/models"
	"github.com/radiusdt/storefront-notify/internal/notify"
	"github.com/radiusdt/storefront-notify/internal/storage"
	"go.uber.org/zap"
)

// ---- Dispatch ----

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var c models.Campaign
	if !s.decode(w, r, &c) {
		return
	}

	res, err := s.dispatcher.Send(r.Context(), c)
	if err != nil {
		s.dispatchError(w, err)
		return
	}
	s.jsonResponse(w, res)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var p models.Push
	if !s.decode(w, r, &p) {
		return
	}

	n, err := s.dispatcher.Push(r.Context(), p)
	if err != nil {
		s.dispatchError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, n)
}

func (s *Server) dispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, notify.ErrInvalidCampaign):
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, notify.ErrUnknownUser):
		s.errorResponse(w, err.Error(), http.StatusNotFound)
	default:
		s.logger.Error("dispatch error", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
	}
}

// ---- Notification management ----

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, ok := s.paging(w, r)
	if !ok {
		return
	}

	list, err := s.notifications.List(r.Context(), models.NotificationFilter{
		UserID:     q.Get("userId"),
		CampaignID: q.Get("campaignId"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		s.logger.Error("list notifications error", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, list)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch models.NotificationPatch
	if !s.decode(w, r, &patch) {
		return
	}
	if patch.Empty() {
		s.errorResponse(w, "nothing to update", http.StatusBadRequest)
		return
	}
	if patch.Type != nil && !patch.Type.Valid() {
		s.errorResponse(w, "unknown type", http.StatusBadRequest)
		return
	}
	if patch.Title != nil && *patch.Title == "" {
		s.errorResponse(w, "title cannot be empty", http.StatusBadRequest)
		return
	}

	n, err := s.notifications.Update(r.Context(), id, patch)
	if errors.Is(err, storage.ErrNotFound) {
		s.errorResponse(w, "notification not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("update notification error", zap.String("id", id), zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.analytics.Invalidate(r.Context())
	s.jsonResponse(w, n)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.notifications.Delete(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.errorResponse(w, "notification not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("delete notification error", zap.String("id", id), zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.analytics.Invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// ---- Reporting ----

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	days, ok := s.days(w, r)
	if !ok {
		return
	}
	report, err := s.analytics.DailyStats(r.Context(), days)
	if err != nil {
		s.logger.Error("daily stats error", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, report)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	days, ok := s.days(w, r)
	if !ok {
		return
	}
	report, err := s.analytics.Sessions(r.Context(), days, r.URL.Query().Get("userId"))
	if err != nil {
		s.logger.Error("sessions error", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, report)
}

func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	list, err := s.analytics.Campaigns(r.Context())
	if err != nil {
		s.logger.Error("campaign rollup error", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, list)
}

// days reads the report window. Out of range values are clamped by the service.
func (s *Server) days(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return 0, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		s.errorResponse(w, "days must be an integer", http.StatusBadRequest)
		return 0, false
	}
	return days, true
}

func (s *Server) paging(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &limit}, {"offset", &offset}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			s.errorResponse(w, p.name+" must be a non-negative integer", http.StatusBadRequest)
			return 0, 0, false
		}
		*p.dst = v
	}
	return limit, offset, true
}
