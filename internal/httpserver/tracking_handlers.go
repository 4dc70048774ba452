package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/radiusdt/storefront-notify/internal/middleware"
	"github.com/radiusdt/storefront-notify/internal/models"
	"github.com/radiusdt/storefront-notify/internal/tracking"
	"go.uber.org/zap"
)

func clientOf(r *http.Request) tracking.Client {
	return tracking.Client{
		IP:  middleware.ClientIP(r),
		UA:  r.UserAgent(),
		Ref: r.Referer(),
	}
}

// handleOpen serves the email pixel. The response never depends on the nid
// or on whether recording succeeded.
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	s.tracker.RecordOpen(r.Context(), r.URL.Query().Get("nid"), clientOf(r))

	h := w.Header()
	h.Set("Content-Type", "image/gif")
	h.Set("Content-Length", strconv.Itoa(len(tracking.TransparentPixel)))
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	w.Write(tracking.TransparentPixel)
}

// handleClick records an email click and redirects to the destination.
func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := q.Get("url")
	if target == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("click redirect failed", zap.Any("panic", rec))
			http.Redirect(w, r, "/", http.StatusFound)
		}
	}()

	s.tracker.RecordClick(r.Context(), q.Get("nid"), target, q.Get("utm_campaign"), clientOf(r))
	http.Redirect(w, r, tracking.SafeRedirect(target), http.StatusFound)
}

// handleTrack ingests a storefront event for the authenticated user.
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())

	var req models.TrackRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.tracker.RecordSiteEvent(r.Context(), p.UserID, req, clientOf(r)); err != nil {
		if errors.Is(err, tracking.ErrInvalidEvent) {
			s.errorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("track error", zap.String("user_id", p.UserID), zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
