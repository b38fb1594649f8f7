package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/evmarket-lifecycle/internal/mailbox"
	"github.com/mmeshcher/evmarket-lifecycle/internal/marketplace"
	"github.com/mmeshcher/evmarket-lifecycle/internal/model"
	"github.com/mmeshcher/evmarket-lifecycle/internal/validation"
)

// actionConfirm обозначает подтверждение оплаты сделки, выполняемое только при сверке возврата.
const actionConfirm model.Action = "confirm"

// MaxReviewComment задаёт длину комментария отзыва, после которой он сокращается при показе.
const MaxReviewComment = 500

// Confirmer запрашивает у пользователя подтверждение необратимого действия.
type Confirmer interface {
	Confirm(prompt string) bool
}

// Confirmed содержит заранее известный ответ пользователя на запрос подтверждения.
type Confirmed bool

// Confirm возвращает сохранённый ответ.
func (c Confirmed) Confirm(string) bool {
	return bool(c)
}

// AssignInput содержит данные формы назначения площадки.
type AssignInput struct {
	OfferID        int64
	PlatformSiteID int64
	BalanceDue     *int64
	ScheduledAt    string
}

// ReturnParams содержит параметры, с которыми платёжная система возвращает пользователя.
type ReturnParams struct {
	// Success равен nil, если параметр success отсутствует.
	Success   *bool
	Cancelled bool
	SessionID string
}

// ParseReturnParams извлекает параметры возврата из строки запроса.
func ParseReturnParams(q url.Values) ReturnParams {
	var p ReturnParams
	if q.Has("success") {
		ok, _ := strconv.ParseBool(q.Get("success"))
		p.Success = &ok
	}
	p.Cancelled, _ = strconv.ParseBool(q.Get("cancelled"))
	p.SessionID = q.Get("session_id")
	return p
}

// PaymentResultParams разбирает параметры экрана результата оплаты:
// наличие session_id без явного success считается успешной оплатой.
func PaymentResultParams(q url.Values) ReturnParams {
	p := ParseReturnParams(q)
	if p.Success == nil && p.SessionID != "" {
		ok := true
		p.Success = &ok
	}
	return p
}

// CheckoutOutcome описывает, чем закончилась сверка возврата с оплаты сделки.
type CheckoutOutcome string

const (
	OutcomeNone          CheckoutOutcome = "none"
	OutcomeMissing       CheckoutOutcome = "missing"
	OutcomeConfirmed     CheckoutOutcome = "confirmed"
	OutcomeConfirmFailed CheckoutOutcome = "confirm_failed"
	OutcomeCancelled     CheckoutOutcome = "cancelled"
)

// ReconcileResult описывает итог сверки возврата с оплаты.
type ReconcileResult struct {
	Outcome CheckoutOutcome `json:"outcome"`
	DealID  int64           `json:"dealId,omitempty"`
	Deals   *DealsView      `json:"deals,omitempty"`
}

// ReviewDraft содержит данные формы отзыва о продавце.
type ReviewDraft struct {
	DealID     int64  `json:"dealId"`
	TargetID   int64  `json:"targetId"`
	TargetName string `json:"targetName,omitempty"`
	MaxComment int    `json:"maxComment"`
}

// TruncateComment сокращает комментарий до limit символов для показа в списке.
func TruncateComment(comment string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(comment) <= limit {
		return comment
	}
	runes := []rune(comment)
	return string(runes[:limit]) + "…"
}

func (s *Service) fetchDeals(ctx context.Context, sess model.Session) (seller, buyer []model.Deal, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		seller, err = s.api.DealsBySeller(gctx, sess, sess.UserID)
		return err
	})
	g.Go(func() error {
		var err error
		buyer, err = s.api.DealsByBuyer(gctx, sess, sess.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return seller, buyer, nil
}

// LoadDeals загружает сделки пользователя как продавца и как покупателя.
// Списки заменяются только если оба запроса успешны.
func (s *Service) LoadDeals(ctx context.Context, sess model.Session) (*DealsView, error) {
	if !sess.Authenticated() {
		return nil, ErrUnauthenticated
	}
	st := s.state(sess)

	seller, buyer, err := s.fetchDeals(ctx, sess)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.fail(sess.UserID, msgLoadDealsFailed, err)
		return nil, fmt.Errorf("load deals: %w", err)
	}
	// Запрос, который уже никому не нужен, не должен менять состояние.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st.replaceDeals(seller, buyer)
	return st.dealsView(), nil
}

// ensureDeals загружает сделки, если они ещё не загружались для пользователя.
func (s *Service) ensureDeals(ctx context.Context, sess model.Session, st *userState) error {
	st.mu.Lock()
	loaded := st.dealsLoaded
	st.mu.Unlock()
	if loaded {
		return nil
	}
	_, err := s.LoadDeals(ctx, sess)
	return err
}

// dealFor находит сделку пользователя в указанной роли и проверяет, что действие ей разрешено.
func (s *Service) dealFor(ctx context.Context, sess model.Session, st *userState, dealID int64, role model.Role, action model.Action) (model.Deal, error) {
	if err := s.ensureDeals(ctx, sess, st); err != nil {
		return model.Deal{}, err
	}
	deal, ok := st.findDeal(dealID, role)
	if !ok {
		s.warn(sess.UserID, msgDealNotFound)
		return model.Deal{}, ErrDealNotFound
	}
	if !model.Allows(model.DealActions(role, deal.Status), action) {
		s.warn(sess.UserID, msgActionNotAllowed)
		return model.Deal{}, fmt.Errorf("%w: %s on %s deal", ErrForbidden, action, deal.Status)
	}
	return deal, nil
}

func (s *Service) beginAction(sess model.Session, st *userState, action model.Action, id int64) (func(), error) {
	release, err := st.begin(actionKey(action, id))
	if err != nil {
		s.warn(sess.UserID, msgActionInFlight)
		return nil, err
	}
	return release, nil
}

// AssignPlatformSite назначает площадку и время встречи по сделке продавца.
// Некорректные данные отклоняются без обращения к серверу.
func (s *Service) AssignPlatformSite(ctx context.Context, sess model.Session, dealID int64, in AssignInput) (*DealView, error) {
	if !sess.Authenticated() {
		return nil, ErrUnauthenticated
	}
	st := s.state(sess)

	if in.PlatformSiteID <= 0 {
		s.warn(sess.UserID, validation.ErrPlatformSiteMissing.Error())
		return nil, validation.ErrPlatformSiteMissing
	}
	at, err := validation.ParseSchedule(in.ScheduledAt, s.loc)
	if err != nil {
		s.warn(sess.UserID, err.Error())
		return nil, err
	}
	if err := validation.CheckSchedule(at, s.now()); err != nil {
		s.warn(sess.UserID, err.Error())
		return nil, err
	}

	deal, err := s.dealFor(ctx, sess, st, dealID, model.RoleSeller, model.ActionAssign)
	if err != nil {
		return nil, err
	}

	release, err := s.beginAction(sess, st, model.ActionAssign, dealID)
	if err != nil {
		return nil, err
	}
	defer release()

	offerID := in.OfferID
	if offerID == 0 {
		offerID = deal.OfferID
	}
	updated, err := s.api.AssignSite(ctx, sess, dealID, marketplace.AssignSiteRequest{
		OfferID:        offerID,
		PlatformSiteID: in.PlatformSiteID,
		BalanceDue:     in.BalanceDue,
		ScheduledAt:    at.Format(validation.ScheduleLayout),
	})
	if err != nil {
		s.fail(sess.UserID, msgAssignFailed, err)
		return nil, fmt.Errorf("assign platform site: %w", err)
	}

	st.mergeDeal(*updated)
	s.markDirty(sess.UserID)
	s.notifier.Notify(sess.UserID, model.LevelSuccess, msgAssigned)

	view := newDealView(*updated, model.RoleSeller)
	return &view, nil
}

// RejectDeal отменяет сделку после подтверждения пользователя.
// Продавец может отменить сделку в статусах INITIALIZED и AWAITING_CONFIRMATION, покупатель в AWAITING_CONFIRMATION.
func (s *Service) RejectDeal(ctx context.Context, sess model.Session, dealID int64, confirm Confirmer) (*DealView, error) {
	if !sess.Authenticated() {
		return nil, ErrUnauthenticated
	}
	// Без подтверждения пользователя к серверу не обращаемся, даже за списком сделок.
	if confirm == nil || !confirm.Confirm(msgRejectPrompt) {
		return nil, ErrNotConfirmed
	}
	st := s.state(sess)

	if err := s.ensureDeals(ctx, sess, st); err != nil {
		return nil, err
	}
	role := model.RoleSeller
	if _, ok := st.findDeal(dealID, model.RoleSeller); !ok {
		role = model.RoleBuyer
	}
	deal, err := s.dealFor(ctx, sess, st, dealID, role, model.ActionReject)
	if err != nil {
		return nil, err
	}

	release, err := s.beginAction(sess, st, model.ActionReject, dealID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.api.RejectDeal(ctx, sess, dealID); err != nil {
		s.fail(sess.UserID, msgRejectFailed, err)
		return nil, fmt.Errorf("reject deal: %w", err)
	}

	deal.Status = model.DealStatusCancelled
	st.mergeDeal(deal)
	s.markDirty(sess.UserID)
	s.notifier.Notify(sess.UserID, model.LevelSuccess, msgRejected)

	view := newDealView(deal, role)
	return &view, nil
}

// CheckoutDeal открывает платёжную сессию по сделке покупателя.
// Идентификатор сделки сохраняется до того, как пользователь уйдёт на страницу оплаты.
func (s *Service) CheckoutDeal(ctx context.Context, sess model.Session, dealID int64) (*marketplace.CheckoutSession, error) {
	if !sess.Authenticated() {
		return nil, ErrUnauthenticated
	}
	st := s.state(sess)

	if _, err := s.dealFor(ctx, sess, st, dealID, model.RoleBuyer, model.ActionCheckout); err != nil {
		return nil, err
	}

	release, err := s.beginAction(sess, st, model.ActionCheckout, dealID)
	if err != nil {
		return nil, err
	}
	defer release()

	checkout, err := s.api.CheckoutDeal(ctx, sess, dealID)
	if err != nil {
		s.fail(sess.UserID, msgCheckoutFailed, err)
		return nil, fmt.Errorf("checkout deal: %w", err)
	}

	if err := mailbox.PutID(ctx, s.mailbox, sess.UserID, mailbox.SlotCheckoutDeal, dealID); err != nil {
		s.fail(sess.UserID, msgCheckoutStoreFailed, err)
		return nil, fmt.Errorf("store checkout deal: %w", err)
	}

	s.logger.Info("checkout started", zap.Int64("userID", sess.UserID), zap.Int64("dealID", dealID), zap.String("sessionID", checkout.SessionID))
	return checkout, nil
}

// ReconcileCheckout завершает оплату сделки после возврата с платёжной страницы.
// Сохранённый идентификатор сделки используется не более одного раза.
func (s *Service) ReconcileCheckout(ctx context.Context, sess model.Session, p ReturnParams) (*ReconcileResult, error) {
	if !sess.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if p.Success == nil {
		return &ReconcileResult{Outcome: OutcomeNone}, nil
	}
	st := s.state(sess)

	dealID, ok, err := mailbox.TakeID(ctx, s.mailbox, sess.UserID, mailbox.SlotCheckoutDeal)
	if err != nil {
		s.fail(sess.UserID, msgConfirmFailed, err)
		return nil, fmt.Errorf("take checkout deal: %w", err)
	}
	if !ok {
		s.warn(sess.UserID, msgCheckoutNotFound)
		return &ReconcileResult{Outcome: OutcomeMissing}, nil
	}

	res := &ReconcileResult{DealID: dealID}
	switch {
	case *p.Success && !p.Cancelled:
		res.Outcome = s.confirmDeal(ctx, sess, st, dealID)
	default:
		res.Outcome = OutcomeCancelled
		s.notifier.Notify(sess.UserID, model.LevelInfo, msgPaymentCancelled)
	}

	if deals, err := s.LoadDeals(ctx, sess); err == nil {
		res.Deals = deals
	}
	return res, nil
}

func (s *Service) confirmDeal(ctx context.Context, sess model.Session, st *userState, dealID int64) CheckoutOutcome {
	release, err := s.beginAction(sess, st, actionConfirm, dealID)
	if err != nil {
		return OutcomeConfirmFailed
	}
	defer release()

	if err := s.api.ConfirmDeal(ctx, sess, dealID); err != nil {
		s.fail(sess.UserID, msgConfirmFailed, err)
		return OutcomeConfirmFailed
	}
	s.notifier.Notify(sess.UserID, model.LevelSuccess, msgPaymentConfirmed)
	return OutcomeConfirmed
}

// OpenReview возвращает форму отзыва по завершённой сделке покупателя.
func (s *Service) OpenReview(ctx context.Context, sess model.Session, dealID int64) (*ReviewDraft, error) {
	if !sess.Authenticated() {
		return nil, ErrUnauthenticated
	}
	st := s.state(sess)

	deal, err := s.dealFor(ctx, sess, st, dealID, model.RoleBuyer, model.ActionReview)
	if err != nil {
		return nil, err
	}

	name := deal.Seller.FullName
	if name == "" {
		name = deal.Seller.Username
	}
	return &ReviewDraft{
		DealID:     deal.DealID,
		TargetID:   deal.Seller.UserID,
		TargetName: name,
		MaxComment: MaxReviewComment,
	}, nil
}

// SubmitReview отправляет отзыв о продавце и перезагружает сделки.
func (s *Service) SubmitReview(ctx context.Context, sess model.Session, dealID int64, rating float64, comment string) (*model.Review, error) {
	if !sess.Authenticated() {
		return nil, ErrUnauthenticated
	}
	st := s.state(sess)

	deal, err := s.dealFor(ctx, sess, st, dealID, model.RoleBuyer, model.ActionReview)
	if err != nil {
		return nil, err
	}
	if err := validation.CheckRating(rating); err != nil {
		s.warn(sess.UserID, err.Error())
		return nil, err
	}

	release, err := s.beginAction(sess, st, model.ActionReview, dealID)
	if err != nil {
		return nil, err
	}
	defer release()

	review, err := s.api.CreateReview(ctx, sess, model.Review{
		DealID:   deal.DealID,
		AuthorID: sess.UserID,
		TargetID: deal.Seller.UserID,
		Rating:   rating,
		Comment:  comment,
	})
	if err != nil {
		s.fail(sess.UserID, msgReviewFailed, err)
		return nil, fmt.Errorf("submit review: %w", err)
	}

	s.notifier.Notify(sess.UserID, model.LevelSuccess, msgReviewSubmitted)
	if _, err := s.LoadDeals(ctx, sess); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("reload after review failed", zap.Error(err))
	}
	return review, nil
}

// PlatformSites возвращает активные площадки. Список загружается один раз на пользователя.
func (s *Service) PlatformSites(ctx context.Context, sess model.Session) ([]model.PlatformSite, error) {
	if !sess.Authenticated() {
		return nil, ErrUnauthenticated
	}
	st := s.state(sess)

	if sites, ok := st.cachedSites(); ok {
		return sites, nil
	}

	sites, err := s.api.ActivePlatformSites(ctx, sess)
	if err != nil {
		s.fail(sess.UserID, msgLoadSitesFailed, err)
		return nil, fmt.Errorf("load platform sites: %w", err)
	}
	if sites == nil {
		sites = []model.PlatformSite{}
	}
	st.setSites(sites)
	return sites, nil
}
