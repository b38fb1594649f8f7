// Package service реализует жизненный цикл сделок, предложений и оплаты проверок маркетплейса.
package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/evmarket-lifecycle/internal/mailbox"
	"github.com/mmeshcher/evmarket-lifecycle/internal/marketplace"
	"github.com/mmeshcher/evmarket-lifecycle/internal/model"
	"github.com/mmeshcher/evmarket-lifecycle/internal/notify"
)

var (
	ErrUnauthenticated = errors.New("user is not authenticated")
	ErrActionInFlight  = errors.New("action is already in progress")
	ErrNotConfirmed    = errors.New("action was not confirmed")
	ErrForbidden       = errors.New("action is not allowed for this role or status")
	ErrDealNotFound    = errors.New("deal not found")
	ErrOfferNotFound   = errors.New("offer not found")
	ErrInvalidStatus   = errors.New("offer status must be ACCEPTED or REJECTED")
)

// Marketplace описывает контракт API маркетплейса, используемый сервисом.
type Marketplace interface {
	DealsBySeller(ctx context.Context, sess model.Session, sellerID int64) ([]model.Deal, error)
	DealsByBuyer(ctx context.Context, sess model.Session, buyerID int64) ([]model.Deal, error)
	AssignSite(ctx context.Context, sess model.Session, dealID int64, req marketplace.AssignSiteRequest) (*model.Deal, error)
	RejectDeal(ctx context.Context, sess model.Session, dealID int64) error
	ConfirmDeal(ctx context.Context, sess model.Session, dealID int64) error
	CheckoutDeal(ctx context.Context, sess model.Session, dealID int64) (*marketplace.CheckoutSession, error)
	ActivePlatformSites(ctx context.Context, sess model.Session) ([]model.PlatformSite, error)
	CreateReview(ctx context.Context, sess model.Session, review model.Review) (*model.Review, error)

	CreateOffer(ctx context.Context, sess model.Session, req marketplace.CreateOfferRequest) (*model.Offer, error)
	OffersBySeller(ctx context.Context, sess model.Session, sellerID int64) ([]model.Offer, error)
	OffersByBuyer(ctx context.Context, sess model.Session, buyerID int64) ([]model.Offer, error)
	UpdateOfferStatus(ctx context.Context, sess model.Session, offerID int64, status model.OfferStatus) error
	DeleteOffer(ctx context.Context, sess model.Session, offerID int64) error
	GetListing(ctx context.Context, sess model.Session, listingID int64) (*model.Listing, error)

	SubmitInspectionOrder(ctx context.Context, sess model.Session, req marketplace.InspectionOrderRequest) (int64, error)
	ConfirmInspectionPayment(ctx context.Context, sess model.Session, orderID int64) error
}

// Option настраивает сервис.
type Option func(*Service)

// WithLocation задаёт часовой пояс, в котором проверяется время встречи.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEnrichConcurrency ограничивает число одновременных запросов объявлений.
func WithEnrichConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.enrichLimit = n
		}
	}
}

// WithReconcileInterval задаёт период фоновой сверки. Ноль отключает сверку.
func WithReconcileInterval(d time.Duration) Option {
	return func(s *Service) {
		s.reconcileInterval = d
	}
}

// WithLogger задаёт логгер сервиса.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service ведёт сделки и предложения пользователей и сверяет их с сервером после каждого изменения.
type Service struct {
	api      Marketplace
	mailbox  mailbox.Store
	notifier notify.Notifier
	logger   *zap.Logger

	loc               *time.Location
	now               func() time.Time
	enrichLimit       int
	enrichTimeout     time.Duration
	reconcileInterval time.Duration

	mu    sync.Mutex
	users map[int64]*userState
	dirty map[int64]struct{}
}

// NewService создаёт сервис поверх API маркетплейса, хранилища одноразовых слотов и канала уведомлений.
func NewService(api Marketplace, box mailbox.Store, notifier notify.Notifier, opts ...Option) *Service {
	s := &Service{
		api:               api,
		mailbox:           box,
		notifier:          notifier,
		logger:            zap.NewNop(),
		loc:               time.Local,
		now:               time.Now,
		enrichLimit:       8,
		enrichTimeout:     30 * time.Second,
		reconcileInterval: time.Second,
		users:             make(map[int64]*userState),
		dirty:             make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// state возвращает состояние пользователя, запоминая последнюю сессию для фоновой сверки.
func (s *Service) state(sess model.Session) *userState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.users[sess.UserID]
	if !ok {
		st = newUserState(sess)
		s.users[sess.UserID] = st
		return st
	}

	st.mu.Lock()
	st.session = sess
	st.mu.Unlock()
	return st
}

func (s *Service) markDirty(userID int64) {
	s.mu.Lock()
	s.dirty[userID] = struct{}{}
	s.mu.Unlock()
}

func actionKey(action model.Action, id int64) string {
	return string(action) + ":" + strconv.FormatInt(id, 10)
}

// fail сообщает пользователю об ошибке сервера. Если сервер прислал текст, показывается он.
func (s *Service) fail(userID int64, fallback string, err error) {
	msg := fallback
	var apiErr *marketplace.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}
	s.logger.Warn(fallback, zap.Int64("userID", userID), zap.Error(err))
	s.notifier.Notify(userID, model.LevelError, msg)
}

func (s *Service) warn(userID int64, msg string) {
	s.notifier.Notify(userID, model.LevelWarning, msg)
}

// StartReconciler запускает фоновую перезагрузку данных пользователей, изменённых оптимистично.
func (s *Service) StartReconciler(ctx context.Context) {
	if s.reconcileInterval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(s.reconcileInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processReconcileBatch(ctx)
			}
		}
	}()
}

func (s *Service) processReconcileBatch(ctx context.Context) {
	s.mu.Lock()
	batch := make([]*userState, 0, len(s.dirty))
	for userID := range s.dirty {
		if st, ok := s.users[userID]; ok {
			batch = append(batch, st)
		}
	}
	clear(s.dirty)
	s.mu.Unlock()

	for _, st := range batch {
		if ctx.Err() != nil {
			return
		}

		st.mu.Lock()
		sess := st.session
		dealsLoaded, offersLoaded := st.dealsLoaded, st.offersLoaded
		st.mu.Unlock()

		if dealsLoaded {
			seller, buyer, err := s.fetchDeals(ctx, sess)
			if err != nil {
				s.logger.Debug("background deals refresh failed", zap.Int64("userID", sess.UserID), zap.Error(err))
			} else {
				st.replaceDeals(seller, buyer)
			}
		}
		if offersLoaded {
			if err := s.refreshOffers(ctx, sess, st); err != nil {
				s.logger.Debug("background offers refresh failed", zap.Int64("userID", sess.UserID), zap.Error(err))
			}
		}
	}
}
