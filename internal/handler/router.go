package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/evmarket-lifecycle/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/healthz", h.Health)

	r.Route("/api/lifecycle", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Put("/session", h.StoreSession)

		r.Get("/deals", h.GetDeals)
		r.Get("/deals/return", h.CheckoutReturn)
		r.Get("/deals/payment-result", h.PaymentResult)
		r.Put("/deals/{dealID}/assign-site", h.AssignSite)
		r.Post("/deals/{dealID}/reject", h.RejectDeal)
		r.Post("/deals/{dealID}/checkout", h.Checkout)
		r.Get("/deals/{dealID}/review", h.OpenReview)
		r.Post("/deals/{dealID}/review", h.SubmitReview)
		r.Get("/platform-sites", h.PlatformSites)

		r.Get("/offers", h.GetOffers)
		r.Get("/offers/cards", h.GetOfferCards)
		r.Post("/offers", h.CreateOffer)
		r.Put("/offers/{offerID}/status", h.UpdateOfferStatus)
		r.Delete("/offers/{offerID}", h.DeleteOffer)

		r.Post("/inspection-orders", h.SubmitInspectionOrder)
		r.Get("/inspection-orders/return", h.InspectionReturn)

		r.Get("/notifications", h.Notifications)
		r.Get("/notifications/ws", h.NotificationStream)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
