package handler

import (
	"net/http"
	"strings"

	"github.com/mmeshcher/evmarket-lifecycle/internal/model"
	"github.com/mmeshcher/evmarket-lifecycle/internal/service"
)

type createOfferRequest struct {
	ListingID     int64 `json:"listingId" validate:"required,gt=0"`
	ProposedPrice int64 `json:"proposedPrice"`
}

type inspectionOrderRequest struct {
	ListingID    int64  `json:"listingId"`
	ScheduledAt  string `json:"scheduledAt" validate:"max=64"`
	ProvinceCode string `json:"provinceCode" validate:"max=16"`
	DistrictCode string `json:"districtCode" validate:"max=16"`
	WardCode     string `json:"wardCode" validate:"max=16"`
	Street       string `json:"street" validate:"max=255"`
	Price        *int64 `json:"price" validate:"omitempty,gte=0"`
}

type inspectionOrderResponse struct {
	OrderID int64 `json:"orderId"`
}

type inspectionResultResponse struct {
	*service.InspectionResult
	RedirectAfterMs int64 `json:"redirectAfterMs,omitempty"`
}

// GetOffers возвращает полученные и отправленные предложения пользователя.
func (h *Handler) GetOffers(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	offers, err := h.service.LoadOffers(r.Context(), sess)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, offers)
}

// GetOfferCards возвращает уже загруженные предложения без запроса к серверу.
// Интерфейс опрашивает этот маршрут, пока карточки обогащаются данными объявлений.
func (h *Handler) GetOfferCards(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	offers, err := h.service.Offers(sess)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, offers)
}

// CreateOffer отправляет предложение цены по объявлению.
func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req createOfferRequest
	if !h.decode(w, r, &req) {
		return
	}

	offer, err := h.service.CreateOffer(r.Context(), sess, req.ListingID, req.ProposedPrice)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if offer == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	h.writeJSON(w, http.StatusCreated, offer)
}

// UpdateOfferStatus принимает или отклоняет полученное предложение.
func (h *Handler) UpdateOfferStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	offerID, ok := pathID(w, r, "offerID")
	if !ok {
		return
	}

	status := model.OfferStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))))

	res, err := h.service.UpdateOfferStatus(r.Context(), sess, offerID, status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// DeleteOffer удаляет отправленное предложение.
func (h *Handler) DeleteOffer(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	offerID, ok := pathID(w, r, "offerID")
	if !ok {
		return
	}

	if err := h.service.DeleteOffer(r.Context(), sess, offerID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitInspectionOrder создаёт заказ проверки объявления.
func (h *Handler) SubmitInspectionOrder(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req inspectionOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	orderID, err := h.service.SubmitInspectionOrder(r.Context(), sess, service.InspectionInput{
		ListingID:    req.ListingID,
		ScheduledAt:  req.ScheduledAt,
		ProvinceCode: req.ProvinceCode,
		DistrictCode: req.DistrictCode,
		WardCode:     req.WardCode,
		Street:       req.Street,
		Price:        req.Price,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, inspectionOrderResponse{OrderID: orderID})
}

// InspectionReturn подтверждает оплату проверки после возврата с платёжной страницы.
func (h *Handler) InspectionReturn(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	res, err := h.service.ConfirmInspectionPayment(r.Context(), sess, service.ParseReturnParams(r.URL.Query()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, inspectionResultResponse{
		InspectionResult: res,
		RedirectAfterMs:  res.RedirectAfter.Milliseconds(),
	})
}
