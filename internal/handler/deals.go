package handler

import (
	"net/http"

	"github.com/mmeshcher/evmarket-lifecycle/internal/service"
)

type assignSiteRequest struct {
	OfferID        int64  `json:"offerId" validate:"gte=0"`
	PlatformSiteID int64  `json:"platformSiteId" validate:"gte=0"`
	BalanceDue     *int64 `json:"balanceDue" validate:"omitempty,gte=0"`
	ScheduledAt    string `json:"scheduledAt" validate:"max=64"`
}

type rejectRequest struct {
	Confirmed *bool `json:"confirmed" validate:"required"`
}

type reviewRequest struct {
	Rating  float64 `json:"rating"`
	Comment string  `json:"comment" validate:"max=10000"`
}

type reviewResponse struct {
	ReviewID       int64   `json:"reviewId,omitempty"`
	DealID         int64   `json:"dealId"`
	Rating         float64 `json:"rating"`
	CommentPreview string  `json:"commentPreview,omitempty"`
}

// GetDeals возвращает сделки текущего пользователя как продавца и как покупателя.
func (h *Handler) GetDeals(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	deals, err := h.service.LoadDeals(r.Context(), sess)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, deals)
}

// AssignSite назначает площадку и время встречи по сделке.
func (h *Handler) AssignSite(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	dealID, ok := pathID(w, r, "dealID")
	if !ok {
		return
	}

	var req assignSiteRequest
	if !h.decode(w, r, &req) {
		return
	}

	deal, err := h.service.AssignPlatformSite(r.Context(), sess, dealID, service.AssignInput{
		OfferID:        req.OfferID,
		PlatformSiteID: req.PlatformSiteID,
		BalanceDue:     req.BalanceDue,
		ScheduledAt:    req.ScheduledAt,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, deal)
}

// RejectDeal отменяет сделку. Тело должно подтверждать действие.
func (h *Handler) RejectDeal(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	dealID, ok := pathID(w, r, "dealID")
	if !ok {
		return
	}

	var req rejectRequest
	if !h.decode(w, r, &req) {
		return
	}

	deal, err := h.service.RejectDeal(r.Context(), sess, dealID, service.Confirmed(*req.Confirmed))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, deal)
}

// Checkout открывает платёжную сессию и возвращает адрес страницы оплаты.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	dealID, ok := pathID(w, r, "dealID")
	if !ok {
		return
	}

	checkout, err := h.service.CheckoutDeal(r.Context(), sess, dealID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, checkout)
}

// CheckoutReturn сверяет сделку после возврата с оплаты и убирает параметры из адреса.
func (h *Handler) CheckoutReturn(w http.ResponseWriter, r *http.Request) {
	h.reconcile(w, r, service.ParseReturnParams(r.URL.Query()))
}

// PaymentResult обрабатывает вариант возврата с оплаты, в котором платёжная система передаёт только session_id.
func (h *Handler) PaymentResult(w http.ResponseWriter, r *http.Request) {
	h.reconcile(w, r, service.PaymentResultParams(r.URL.Query()))
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request, p service.ReturnParams) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	res, err := h.service.ReconcileCheckout(r.Context(), sess, p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if wantsJSON(r) {
		h.writeJSON(w, http.StatusOK, res)
		return
	}
	http.Redirect(w, r, h.uiBaseURL+service.DealsPath, http.StatusSeeOther)
}

// OpenReview возвращает форму отзыва по завершённой сделке.
func (h *Handler) OpenReview(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	dealID, ok := pathID(w, r, "dealID")
	if !ok {
		return
	}

	draft, err := h.service.OpenReview(r.Context(), sess, dealID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, draft)
}

// SubmitReview отправляет отзыв о продавце.
func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	dealID, ok := pathID(w, r, "dealID")
	if !ok {
		return
	}

	var req reviewRequest
	if !h.decode(w, r, &req) {
		return
	}

	review, err := h.service.SubmitReview(r.Context(), sess, dealID, req.Rating, req.Comment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := reviewResponse{DealID: dealID, Rating: req.Rating, CommentPreview: service.TruncateComment(req.Comment, service.MaxReviewComment)}
	if review != nil {
		resp.ReviewID = review.ReviewID
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

// PlatformSites возвращает активные площадки для формы назначения встречи.
func (h *Handler) PlatformSites(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	sites, err := h.service.PlatformSites(r.Context(), sess)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sites)
}
