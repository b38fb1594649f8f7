package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/evmarket-lifecycle/internal/mailbox"
	"github.com/mmeshcher/evmarket-lifecycle/internal/marketplace"
	"github.com/mmeshcher/evmarket-lifecycle/internal/model"
	"github.com/mmeshcher/evmarket-lifecycle/internal/validation"
)

// actionInspection обозначает заказ проверки объявления.
const actionInspection model.Action = "inspection"

const (
	// MyListingsPath задаёт экран, на который пользователь возвращается после оплаты проверки.
	MyListingsPath = "/my-listings"
	// InspectionRedirectDelay задаёт паузу перед переходом после успешной оплаты.
	InspectionRedirectDelay = 3 * time.Second
)

// InspectionState описывает конечное состояние экрана результата оплаты проверки.
type InspectionState string

const (
	InspectionSucceeded InspectionState = "success"
	InspectionFailed    InspectionState = "failed"
	InspectionError     InspectionState = "error"
)

// InspectionResult описывает итог подтверждения оплаты проверки.
type InspectionResult struct {
	State         InspectionState `json:"state"`
	OrderID       int64           `json:"orderId,omitempty"`
	Message       string          `json:"message"`
	RedirectTo    string          `json:"redirectTo,omitempty"`
	RedirectAfter time.Duration   `json:"-"`
}

// InspectionInput содержит данные формы заказа проверки.
type InspectionInput struct {
	ListingID    int64
	ScheduledAt  string
	ProvinceCode string
	DistrictCode string
	WardCode     string
	Street       string
	Price        *int64
}

// SubmitInspectionOrder создаёт заказ проверки и запоминает его идентификатор до возврата с оплаты.
func (s *Service) SubmitInspectionOrder(ctx context.Context, sess model.Session, in InspectionInput) (int64, error) {
	if !sess.Authenticated() {
		return 0, ErrUnauthenticated
	}
	if in.ListingID <= 0 {
		s.warn(sess.UserID, validation.ErrInspectionListingNone.Error())
		return 0, validation.ErrInspectionListingNone
	}

	req := marketplace.InspectionOrderRequest{
		ListingID:    in.ListingID,
		ProvinceCode: in.ProvinceCode,
		DistrictCode: in.DistrictCode,
		WardCode:     in.WardCode,
		Street:       in.Street,
		Price:        in.Price,
	}
	if in.ScheduledAt != "" {
		at, err := validation.ParseSchedule(in.ScheduledAt, s.loc)
		if err != nil {
			s.warn(sess.UserID, err.Error())
			return 0, err
		}
		req.ScheduledAt = at.Format(validation.ScheduleLayout)
	}

	st := s.state(sess)
	release, err := s.beginAction(sess, st, actionInspection, in.ListingID)
	if err != nil {
		return 0, err
	}
	defer release()

	orderID, err := s.api.SubmitInspectionOrder(ctx, sess, req)
	if err != nil {
		s.fail(sess.UserID, msgInspectionSubmitFailed, err)
		return 0, fmt.Errorf("submit inspection order: %w", err)
	}

	if err := mailbox.PutID(ctx, s.mailbox, sess.UserID, mailbox.SlotInspectionOrder, orderID); err != nil {
		s.fail(sess.UserID, msgInspectionStoreFailed, err)
		return 0, fmt.Errorf("store inspection order: %w", err)
	}

	s.notifier.Notify(sess.UserID, model.LevelInfo, msgInspectionSubmitted)
	return orderID, nil
}

// ConfirmInspectionPayment подтверждает оплату проверки после возврата с платёжной страницы.
// Сохранённый идентификатор заказа удаляется до подтверждения, поэтому повторная попытка
// заканчивается сообщением о необходимости начать бронирование заново.
func (s *Service) ConfirmInspectionPayment(ctx context.Context, sess model.Session, p ReturnParams) (*InspectionResult, error) {
	if !sess.Authenticated() {
		return nil, ErrUnauthenticated
	}

	paid := p.Success != nil && *p.Success && !p.Cancelled
	if !paid {
		if err := s.mailbox.Clear(ctx, sess.UserID, mailbox.SlotInspectionOrder); err != nil {
			s.logger.Warn("clear inspection order slot failed", zap.Int64("userID", sess.UserID), zap.Error(err))
		}
		s.notifier.Notify(sess.UserID, model.LevelInfo, msgInspectionCancelled)
		return &InspectionResult{State: InspectionFailed, Message: msgInspectionCancelled}, nil
	}

	orderID, ok, err := mailbox.TakeID(ctx, s.mailbox, sess.UserID, mailbox.SlotInspectionOrder)
	if err != nil {
		s.fail(sess.UserID, msgInspectionFailed, err)
		return nil, fmt.Errorf("take inspection order: %w", err)
	}
	if !ok {
		s.notifier.Notify(sess.UserID, model.LevelError, msgInspectionMissing)
		return &InspectionResult{State: InspectionError, Message: msgInspectionMissing}, nil
	}

	if err := s.api.ConfirmInspectionPayment(ctx, sess, orderID); err != nil {
		s.fail(sess.UserID, msgInspectionFailed, err)
		msg := msgInspectionFailed
		var apiErr *marketplace.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return &InspectionResult{State: InspectionError, OrderID: orderID, Message: msg}, nil
	}

	s.notifier.Notify(sess.UserID, model.LevelSuccess, msgInspectionPaid)
	return &InspectionResult{
		State:         InspectionSucceeded,
		OrderID:       orderID,
		Message:       msgInspectionPaid,
		RedirectTo:    MyListingsPath,
		RedirectAfter: InspectionRedirectDelay,
	}, nil
}
