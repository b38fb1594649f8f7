// Package handler содержит HTTP-обработчики сервиса сопровождения сделок маркетплейса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mmeshcher/evmarket-lifecycle/internal/marketplace"
	"github.com/mmeshcher/evmarket-lifecycle/internal/middleware"
	"github.com/mmeshcher/evmarket-lifecycle/internal/model"
	"github.com/mmeshcher/evmarket-lifecycle/internal/service"
	"github.com/mmeshcher/evmarket-lifecycle/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	LoadDeals(ctx context.Context, sess model.Session) (*service.DealsView, error)
	AssignPlatformSite(ctx context.Context, sess model.Session, dealID int64, in service.AssignInput) (*service.DealView, error)
	RejectDeal(ctx context.Context, sess model.Session, dealID int64, confirm service.Confirmer) (*service.DealView, error)
	CheckoutDeal(ctx context.Context, sess model.Session, dealID int64) (*marketplace.CheckoutSession, error)
	ReconcileCheckout(ctx context.Context, sess model.Session, p service.ReturnParams) (*service.ReconcileResult, error)
	OpenReview(ctx context.Context, sess model.Session, dealID int64) (*service.ReviewDraft, error)
	SubmitReview(ctx context.Context, sess model.Session, dealID int64, rating float64, comment string) (*model.Review, error)
	PlatformSites(ctx context.Context, sess model.Session) ([]model.PlatformSite, error)

	LoadOffers(ctx context.Context, sess model.Session) (*service.OffersView, error)
	Offers(sess model.Session) (*service.OffersView, error)
	UpdateOfferStatus(ctx context.Context, sess model.Session, offerID int64, status model.OfferStatus) (*service.OfferUpdate, error)
	DeleteOffer(ctx context.Context, sess model.Session, offerID int64) error
	CreateOffer(ctx context.Context, sess model.Session, listingID, proposedPrice int64) (*model.Offer, error)

	SubmitInspectionOrder(ctx context.Context, sess model.Session, in service.InspectionInput) (int64, error)
	ConfirmInspectionPayment(ctx context.Context, sess model.Session, p service.ReturnParams) (*service.InspectionResult, error)
}

// Notifications отдаёт накопленные уведомления и поток новых.
type Notifications interface {
	Drain(userID int64) []model.Notification
	ServeWebsocket(w http.ResponseWriter, r *http.Request, userID int64)
}

// HealthCheck проверяет доступность хранилища.
type HealthCheck func(ctx context.Context) error

// Handler реализует HTTP-обработчики сервиса сопровождения сделок.
type Handler struct {
	service        Service
	notifications  Notifications
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	validate       *validator.Validate
	uiBaseURL      string
	health         HealthCheck
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, n Notifications, logger *zap.Logger, auth *middleware.AuthMiddleware, uiBaseURL string, health HealthCheck) *Handler {
	return &Handler{
		service:        s,
		notifications:  n,
		logger:         logger,
		authMiddleware: auth,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		uiBaseURL:      strings.TrimRight(uiBaseURL, "/"),
		health:         health,
	}
}

// writeError переводит ошибку сервиса в HTTP-статус.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *marketplace.APIError
	var urlErr *url.Error

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, context.Canceled):
		return
	case errors.Is(err, service.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case validation.IsUserFacing(err), errors.Is(err, service.ErrInvalidStatus):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrActionInFlight):
		status = http.StatusConflict
	case errors.Is(err, service.ErrNotConfirmed):
		status = http.StatusPreconditionFailed
	case errors.Is(err, service.ErrDealNotFound), errors.Is(err, service.ErrOfferNotFound):
		status = http.StatusNotFound
	case errors.As(err, &apiErr), errors.As(err, &urlErr), errors.Is(err, marketplace.ErrNotConfigured),
		errors.Is(err, context.DeadlineExceeded):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("uri", r.URL.Path), zap.Error(err))
	}
	http.Error(w, http.StatusText(status), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response error", zap.Error(err))
	}
}

// decode читает JSON-тело и проверяет его тегами validate.
// При ошибке ответ уже записан и возвращается false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return false
		}
		details := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, describeFieldError(fe))
		}
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string][]string{"errors": details})
		return false
	}
	return true
}

func describeFieldError(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "gt", "gte", "min":
		return name + " must be at least " + fe.Param()
	case "max", "lte":
		return name + " must be at most " + fe.Param()
	default:
		return name + " is not valid"
	}
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (model.Session, bool) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok || !sess.Authenticated() {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return model.Session{}, false
	}
	return sess, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// Health сообщает о готовности сервиса.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// StoreSession сохраняет токен запроса в cookie для последующих переходов с платёжных страниц.
func (h *Handler) StoreSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.authMiddleware.SetAuthCookie(w, sess.Token)
	w.WriteHeader(http.StatusNoContent)
}

// Notifications возвращает накопленные уведомления пользователя.
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	pending := h.notifications.Drain(sess.UserID)
	if len(pending) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, pending)
}

// NotificationStream открывает websocket с уведомлениями пользователя.
func (h *Handler) NotificationStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.notifications.ServeWebsocket(w, r, sess.UserID)
}
