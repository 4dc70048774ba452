package httpserver

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/radiusdt/storefront-notify/internal/middleware"
	"github.com/radiusdt/storefront-notify/internal/models"
	"github.com/radiusdt/storefront-notify/internal/storage"
	"go.uber.org/zap"
)

// ---- In-app inbox ----

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	limit, offset, ok := s.paging(w, r)
	if !ok {
		return
	}

	list, err := s.notifications.List(r.Context(), models.NotificationFilter{
		UserID:     p.UserID,
		UnreadOnly: r.URL.Query().Get("unread") == "true",
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		s.logger.Error("inbox error", zap.String("user_id", p.UserID), zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, list)
}

func (s *Server) handleUnread(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())

	n, err := s.notifications.CountUnread(r.Context(), p.UserID)
	if err != nil {
		s.logger.Error("unread count error", zap.String("user_id", p.UserID), zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, map[string]int64{"unread": n})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	id := chi.URLParam(r, "id")

	err := s.notifications.MarkRead(r.Context(), p.UserID, id, s.now())
	if errors.Is(err, storage.ErrNotFound) {
		s.errorResponse(w, "notification not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("mark read error", zap.String("id", id), zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReadAll(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())

	n, err := s.notifications.MarkAllRead(r.Context(), p.UserID, s.now())
	if err != nil {
		s.logger.Error("mark all read error", zap.String("user_id", p.UserID), zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, map[string]int64{"updated": n})
}
