package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/evmarket-lifecycle/internal/marketplace"
	"github.com/mmeshcher/evmarket-lifecycle/internal/middleware"
	"github.com/mmeshcher/evmarket-lifecycle/internal/model"
	"github.com/mmeshcher/evmarket-lifecycle/internal/service"
	"github.com/mmeshcher/evmarket-lifecycle/internal/validation"
)

type stubService struct {
	lastSession model.Session

	deals    *service.DealsView
	dealsErr error

	assignIn  service.AssignInput
	assignErr error

	rejectConfirmed bool

	checkout *marketplace.CheckoutSession

	reconcileParams service.ReturnParams
	reconcile       *service.ReconcileResult

	review *model.Review

	offersView *service.OffersView
	loadCalls  int

	offerStatus model.OfferStatus
	offerUpdate *service.OfferUpdate

	created *model.Offer

	inspectionResult *service.InspectionResult
}

func (s *stubService) LoadDeals(ctx context.Context, sess model.Session) (*service.DealsView, error) {
	s.lastSession = sess
	return s.deals, s.dealsErr
}

func (s *stubService) AssignPlatformSite(ctx context.Context, sess model.Session, dealID int64, in service.AssignInput) (*service.DealView, error) {
	s.assignIn = in
	if s.assignErr != nil {
		return nil, s.assignErr
	}
	return &service.DealView{Deal: model.Deal{DealID: dealID, Status: model.DealStatusAwaitingConfirmation}}, nil
}

func (s *stubService) RejectDeal(ctx context.Context, sess model.Session, dealID int64, confirm service.Confirmer) (*service.DealView, error) {
	s.rejectConfirmed = confirm.Confirm("reject?")
	if !s.rejectConfirmed {
		return nil, service.ErrNotConfirmed
	}
	return &service.DealView{Deal: model.Deal{DealID: dealID, Status: model.DealStatusCancelled}}, nil
}

func (s *stubService) CheckoutDeal(ctx context.Context, sess model.Session, dealID int64) (*marketplace.CheckoutSession, error) {
	return s.checkout, nil
}

func (s *stubService) ReconcileCheckout(ctx context.Context, sess model.Session, p service.ReturnParams) (*service.ReconcileResult, error) {
	s.reconcileParams = p
	return s.reconcile, nil
}

func (s *stubService) OpenReview(ctx context.Context, sess model.Session, dealID int64) (*service.ReviewDraft, error) {
	return &service.ReviewDraft{DealID: dealID, MaxComment: service.MaxReviewComment}, nil
}

func (s *stubService) SubmitReview(ctx context.Context, sess model.Session, dealID int64, rating float64, comment string) (*model.Review, error) {
	if err := validation.CheckRating(rating); err != nil {
		return nil, err
	}
	return s.review, nil
}

func (s *stubService) PlatformSites(ctx context.Context, sess model.Session) ([]model.PlatformSite, error) {
	return []model.PlatformSite{{PlatformSiteID: 1, Name: "Site", Active: true}}, nil
}

func (s *stubService) LoadOffers(ctx context.Context, sess model.Session) (*service.OffersView, error) {
	s.loadCalls++
	return &service.OffersView{}, nil
}

func (s *stubService) Offers(sess model.Session) (*service.OffersView, error) {
	return s.offersView, nil
}

func (s *stubService) UpdateOfferStatus(ctx context.Context, sess model.Session, offerID int64, status model.OfferStatus) (*service.OfferUpdate, error) {
	s.offerStatus = status
	return s.offerUpdate, nil
}

func (s *stubService) DeleteOffer(ctx context.Context, sess model.Session, offerID int64) error {
	if offerID == 404 {
		return service.ErrOfferNotFound
	}
	return nil
}

func (s *stubService) CreateOffer(ctx context.Context, sess model.Session, listingID, proposedPrice int64) (*model.Offer, error) {
	return s.created, nil
}

func (s *stubService) SubmitInspectionOrder(ctx context.Context, sess model.Session, in service.InspectionInput) (int64, error) {
	return 314, nil
}

func (s *stubService) ConfirmInspectionPayment(ctx context.Context, sess model.Session, p service.ReturnParams) (*service.InspectionResult, error) {
	return s.inspectionResult, nil
}

type stubNotifications struct {
	pending []model.Notification
}

func (n *stubNotifications) Drain(userID int64) []model.Notification {
	out := n.pending
	n.pending = nil
	return out
}

func (n *stubNotifications) ServeWebsocket(w http.ResponseWriter, r *http.Request, userID int64) {
	w.WriteHeader(http.StatusSwitchingProtocols)
}

const testUI = "http://ui.test"

type testEnv struct {
	svc    *stubService
	notes  *stubNotifications
	router http.Handler
	token  string
}

func newTestEnv(t *testing.T, health HealthCheck) *testEnv {
	t.Helper()

	auth := middleware.NewAuthMiddleware("test-secret")
	token, err := auth.IssueToken(42, "alice", time.Hour)
	require.NoError(t, err)

	svc := &stubService{}
	notes := &stubNotifications{}
	h := NewHandler(svc, notes, zap.NewNop(), auth, testUI+"/", health)

	return &testEnv{svc: svc, notes: notes, router: h.SetupRouter(), token: token}
}

func (e *testEnv) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_RequireAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/lifecycle/deals", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoutes_RejectForeignSignature(t *testing.T) {
	env := newTestEnv(t, nil)
	forged, err := middleware.NewAuthMiddleware("attacker-key").IssueToken(42, "alice", time.Hour)
	require.NoError(t, err)

	env.notes.pending = []model.Notification{{Level: model.LevelInfo, Message: "private"}}

	req := httptest.NewRequest(http.MethodGet, "/api/lifecycle/notifications", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Len(t, env.notes.pending, 1)
}

func TestGetDeals_PassesSession(t *testing.T) {
	env := newTestEnv(t, nil)
	env.svc.deals = &service.DealsView{
		Seller: []service.DealView{{Deal: model.Deal{DealID: 1, Status: model.DealStatusScheduled}, Role: model.RoleSeller, Badge: "Awaiting payment"}},
		Buyer:  []service.DealView{},
	}

	rec := env.do(t, http.MethodGet, "/api/lifecycle/deals", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string][]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, float64(1), got["seller"][0]["dealId"])
	assert.Equal(t, "Awaiting payment", got["seller"][0]["badge"])
	assert.Equal(t, int64(42), env.svc.lastSession.UserID)
	assert.Equal(t, env.token, env.svc.lastSession.Token)
}

func TestAssignSite_ForwardsInputAndMapsValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPut, "/api/lifecycle/deals/5/assign-site", `{"platformSiteId":3,"scheduledAt":"2030-05-02T10:00","balanceDue":1500}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(3), env.svc.assignIn.PlatformSiteID)
	assert.Equal(t, "2030-05-02T10:00", env.svc.assignIn.ScheduledAt)
	require.NotNil(t, env.svc.assignIn.BalanceDue)
	assert.Equal(t, int64(1500), *env.svc.assignIn.BalanceDue)

	env.svc.assignErr = validation.ErrScheduleOutsideHours
	rec = env.do(t, http.MethodPut, "/api/lifecycle/deals/5/assign-site", `{"platformSiteId":3,"scheduledAt":"2030-05-02T08:59"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/lifecycle/deals/5/assign-site", `{"platformSiteId":-1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/lifecycle/deals/abc/assign-site", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRejectDeal_Confirmation(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/lifecycle/deals/5/reject", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "missing confirmation flag")

	rec = env.do(t, http.MethodPost, "/api/lifecycle/deals/5/reject", `{"confirmed":false}`)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/lifecycle/deals/5/reject", `{"confirmed":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"CANCELLED"`)
}

func TestCheckoutReturn_RedirectsToCleanURL(t *testing.T) {
	env := newTestEnv(t, nil)
	env.svc.reconcile = &service.ReconcileResult{Outcome: service.OutcomeConfirmed, DealID: 4}

	rec := env.do(t, http.MethodGet, "/api/lifecycle/deals/return?success=true", "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, testUI+"/deals", rec.Header().Get("Location"))
	require.NotNil(t, env.svc.reconcileParams.Success)
	assert.True(t, *env.svc.reconcileParams.Success)

	rec = env.do(t, http.MethodGet, "/api/lifecycle/deals/return?success=false", "", "Accept", "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"outcome":"confirmed"`)
	assert.False(t, *env.svc.reconcileParams.Success)
}

func TestPaymentResult_SessionIDMeansSuccess(t *testing.T) {
	env := newTestEnv(t, nil)
	env.svc.reconcile = &service.ReconcileResult{Outcome: service.OutcomeConfirmed}

	rec := env.do(t, http.MethodGet, "/api/lifecycle/deals/payment-result?session_id=cs_1", "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.NotNil(t, env.svc.reconcileParams.Success)
	assert.True(t, *env.svc.reconcileParams.Success)
	assert.Equal(t, "cs_1", env.svc.reconcileParams.SessionID)
}

func TestSubmitReview_RatingValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	env.svc.review = &model.Review{ReviewID: 9}

	rec := env.do(t, http.MethodPost, "/api/lifecycle/deals/5/review", `{"rating":0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	long := strings.Repeat("a", service.MaxReviewComment+20)
	rec = env.do(t, http.MethodPost, "/api/lifecycle/deals/5/review", fmt.Sprintf(`{"rating":4.5,"comment":%q}`, long))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp reviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(9), resp.ReviewID)
	assert.Len(t, []rune(resp.CommentPreview), service.MaxReviewComment+1)
}

func TestUpdateOfferStatus_UppercasesQuery(t *testing.T) {
	env := newTestEnv(t, nil)
	env.svc.offerUpdate = &service.OfferUpdate{NavigateTo: service.DealsPath}

	rec := env.do(t, http.MethodPut, "/api/lifecycle/offers/7/status?status=accepted", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.OfferStatusAccepted, env.svc.offerStatus)
	assert.Contains(t, rec.Body.String(), `"navigateTo":"/deals"`)
}

func TestGetOfferCards_DoesNotReload(t *testing.T) {
	env := newTestEnv(t, nil)
	env.svc.offersView = &service.OffersView{
		Received: []service.OfferCard{{
			Offer:   model.Offer{OfferID: 1, ListingID: 100, Status: model.OfferStatusPending},
			Card:    service.CardReady,
			Listing: &model.Listing{ListingID: 100, Title: "Model 3"},
		}},
		Sent: []service.OfferCard{},
	}

	rec := env.do(t, http.MethodGet, "/api/lifecycle/offers/cards", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"card":"ready"`)
	assert.Contains(t, rec.Body.String(), `"title":"Model 3"`)
	assert.Equal(t, 0, env.svc.loadCalls)
}

func TestDeleteOffer(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/lifecycle/offers/7", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/lifecycle/offers/404", "").Code)
}

func TestCreateOffer(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/lifecycle/offers", `{"proposedPrice":100}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "ListingID is required")

	rec = env.do(t, http.MethodPost, "/api/lifecycle/offers", `{"listingId":3,"proposedPrice":100}`)
	assert.Equal(t, http.StatusAccepted, rec.Code, "unknown response shape")

	env.svc.created = &model.Offer{OfferID: 11}
	rec = env.do(t, http.MethodPost, "/api/lifecycle/offers", `{"listingId":3,"proposedPrice":100}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestInspectionReturn_IncludesRedirectDelay(t *testing.T) {
	env := newTestEnv(t, nil)
	env.svc.inspectionResult = &service.InspectionResult{
		State:         service.InspectionSucceeded,
		OrderID:       314,
		RedirectTo:    service.MyListingsPath,
		RedirectAfter: service.InspectionRedirectDelay,
	}

	rec := env.do(t, http.MethodGet, "/api/lifecycle/inspection-orders/return?success=true", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "success", got["state"])
	assert.Equal(t, "/my-listings", got["redirectTo"])
	assert.Equal(t, float64(3000), got["redirectAfterMs"])
}

func TestSubmitInspectionOrder(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/lifecycle/inspection-orders", `{"listingId":42,"street":"1 Le Loi"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"orderId":314}`, rec.Body.String())
}

func TestNotifications_Drain(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodGet, "/api/lifecycle/notifications", "").Code)

	env.notes.pending = []model.Notification{{Level: model.LevelWarning, Message: "Schedule time must be in the future"}}
	rec := env.do(t, http.MethodGet, "/api/lifecycle/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"level":"warning"`)
}

func TestStoreSession_SetsCookie(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPut, "/api/lifecycle/session", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, env.token, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestHealth(t *testing.T) {
	ok := newTestEnv(t, func(context.Context) error { return nil })
	rec := httptest.NewRecorder()
	ok.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestEnv(t, func(context.Context) error { return errors.New("redis down") })
	rec = httptest.NewRecorder()
	down.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWriteError_StatusMapping(t *testing.T) {
	h := NewHandler(&stubService{}, &stubNotifications{}, zap.NewNop(), middleware.NewAuthMiddleware("x"), testUI, nil)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthenticated", service.ErrUnauthenticated, http.StatusUnauthorized},
		{"schedule", fmt.Errorf("assign: %w", validation.ErrScheduleInPast), http.StatusUnprocessableEntity},
		{"bad status", service.ErrInvalidStatus, http.StatusUnprocessableEntity},
		{"forbidden", fmt.Errorf("%w: reject on COMPLETED deal", service.ErrForbidden), http.StatusConflict},
		{"in flight", service.ErrActionInFlight, http.StatusConflict},
		{"not confirmed", service.ErrNotConfirmed, http.StatusPreconditionFailed},
		{"deal missing", service.ErrDealNotFound, http.StatusNotFound},
		{"upstream", fmt.Errorf("load deals: %w", &marketplace.APIError{StatusCode: 500, Code: -1}), http.StatusBadGateway},
		{"network", &url.Error{Op: "Get", URL: "http://api", Err: errors.New("refused")}, http.StatusBadGateway},
		{"not configured", marketplace.ErrNotConfigured, http.StatusBadGateway},
		{"storage", errors.New("mailbox unavailable"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), tt.err)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
