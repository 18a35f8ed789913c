package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/robertarktes/class-bookings/internal/auth"
	"github.com/robertarktes/class-bookings/internal/cart"
	"github.com/robertarktes/class-bookings/internal/domain"
	"github.com/robertarktes/class-bookings/internal/feedback"
	"github.com/robertarktes/class-bookings/internal/observability"
)

type CatalogService interface {
	ListAll(ctx context.Context, page int) (domain.Page, error)
	Items(ctx context.Context) ([]domain.Item, error)
	GetBySlug(ctx context.Context, slug string) (domain.Item, error)
}

type CartService interface {
	AddToCart(ctx context.Context, userID uuid.UUID, slug string) (cart.Result, error)
	RemoveFromCart(ctx context.Context, userID uuid.UUID, slug string) (cart.Result, error)
	Summary(ctx context.Context, userID uuid.UUID) (cart.Summary, error)
}

type FeedbackService interface {
	Submit(ctx context.Context, userID uuid.UUID, form domain.FeedbackForm) error
}

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	catalog  CatalogService
	cart     CartService
	feedback FeedbackService
	checks   map[string]Pinger
	logger   observability.Logger
}

func NewHandlers(catalog CatalogService, cart CartService, feedback FeedbackService, logger observability.Logger, checks map[string]Pinger) *Handlers {
	return &Handlers{
		catalog:  catalog,
		cart:     cart,
		feedback: feedback,
		checks:   checks,
		logger:   logger,
	}
}

// RedirectBody is the JSON body sent along with a 303.
type RedirectBody struct {
	Redirect string         `json:"redirect"`
	Notice   *domain.Notice `json:"notice,omitempty"`
}

func productPath(slug string) string {
	return "/product/" + slug + "/"
}

func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, r, errors.Wrapf(domain.ErrNotFound, "page %q", raw))
			return
		}
		page = n
	}

	result, err := h.catalog.ListAll(r.Context(), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) Products(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.Items(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handlers) Product(w http.ResponseWriter, r *http.Request) {
	item, err := h.catalog.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFrom(r.Context())
	res, err := h.cart.AddToCart(r.Context(), userID, chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	redirect(w, productPath(res.Slug), &res.Notice)
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFrom(r.Context())
	res, err := h.cart.RemoveFromCart(r.Context(), userID, chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	redirect(w, productPath(res.Slug), &res.Notice)
}

func (h *Handlers) OrderSummary(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFrom(r.Context())
	summary, err := h.cart.Summary(r.Context(), userID)
	if errors.Is(err, domain.ErrNotFound) {
		notice := domain.NoticeNoOpenOrder
		redirect(w, "/", &notice)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handlers) FeedbackForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"fields": feedback.Fields()})
}

// SubmitFeedback accepts JSON or form encoded input and always redirects
// back to the form.
func (h *Handlers) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var form domain.FeedbackForm
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
			observability.FromContext(r.Context(), h.logger).WithError(err).Debug("decode feedback")
			redirect(w, "/feedback/", nil)
			return
		}
	} else if err := r.ParseForm(); err == nil {
		form = domain.FeedbackForm{
			Timetable:  r.PostForm.Get("timetable"),
			Capacity:   r.PostForm.Get("capacity"),
			Duration:   r.PostForm.Get("duration"),
			Facilities: r.PostForm.Get("facilities"),
			Price:      r.PostForm.Get("price"),
		}
	}

	userID, _ := auth.UserFrom(r.Context())
	// Validation errors are not reported back to the client.
	_ = h.feedback.Submit(r.Context(), userID, form)
	redirect(w, "/feedback/", nil)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	for name, check := range h.checks {
		if err := check.Ping(r.Context()); err != nil {
			observability.FromContext(r.Context(), h.logger).WithError(err).WithField("dependency", name).Warn("not ready")
			http.Error(w, name+" unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		observability.FromContext(r.Context(), h.logger).
			WithError(err).
			WithField("request_id", middleware.GetReqID(r.Context())).
			Error("request failed")
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrSerializationFailure):
		return http.StatusConflict, "conflict, try again"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid input"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func redirect(w http.ResponseWriter, location string, notice *domain.Notice) {
	w.Header().Set("Location", location)
	writeJSON(w, http.StatusSeeOther, RedirectBody{Redirect: location, Notice: notice})
}
