package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/evmarket-lifecycle/internal/marketplace"
	"github.com/mmeshcher/evmarket-lifecycle/internal/model"
	"github.com/mmeshcher/evmarket-lifecycle/internal/validation"
)

// actionOffer обозначает отправку предложения по объявлению.
const actionOffer model.Action = "offer"

// DealsPath задаёт экран, на который переходит продавец после принятия предложения.
const DealsPath = "/deals"

// OfferUpdate описывает результат ответа продавца на предложение.
type OfferUpdate struct {
	Offer      OfferCard `json:"offer"`
	NavigateTo string    `json:"navigateTo,omitempty"`
}

func (s *Service) fetchOffers(ctx context.Context, sess model.Session) (received, sent []model.Offer, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		received, err = s.api.OffersBySeller(gctx, sess, sess.UserID)
		return err
	})
	g.Go(func() error {
		var err error
		sent, err = s.api.OffersByBuyer(gctx, sess, sess.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return received, sent, nil
}

// refreshOffers заменяет списки предложений и запускает обогащение карточек.
func (s *Service) refreshOffers(ctx context.Context, sess model.Session, st *userState) error {
	received, sent, err := s.fetchOffers(ctx, sess)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	regressed := st.replaceOffers(received, sent)
	for _, id := range regressed {
		s.logger.Warn("server returned answered offer as pending, keeping answered status",
			zap.Int64("userID", sess.UserID), zap.Int64("offerID", id))
	}

	if pending := st.pendingCards(); len(pending) > 0 {
		go s.enrich(context.WithoutCancel(ctx), sess, st, pending)
	}
	return nil
}

// LoadOffers загружает полученные и отправленные предложения пользователя.
// Данные объявлений подгружаются в фоне, каждая карточка независимо от остальных.
func (s *Service) LoadOffers(ctx context.Context, sess model.Session) (*OffersView, error) {
	if !sess.Authenticated() {
		return nil, ErrUnauthenticated
	}
	st := s.state(sess)

	if err := s.refreshOffers(ctx, sess, st); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.fail(sess.UserID, msgLoadOffersFailed, err)
		return nil, fmt.Errorf("load offers: %w", err)
	}
	return st.offersView(), nil
}

// Offers возвращает текущее представление предложений без обращения к серверу.
// Через него интерфейс опрашивает ход обогащения карточек, не перезапуская загрузку списков.
func (s *Service) Offers(sess model.Session) (*OffersView, error) {
	if !sess.Authenticated() {
		return nil, ErrUnauthenticated
	}
	return s.state(sess).offersView(), nil
}

// enrich загружает объявления для карточек. Ошибка одной карточки не влияет на остальные.
// Результат отбрасывается, если предложение пропало из списков или сменило объявление.
func (s *Service) enrich(ctx context.Context, sess model.Session, st *userState, offers []model.Offer) {
	ctx, cancel := context.WithTimeout(ctx, s.enrichTimeout)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(s.enrichLimit)

	for _, o := range offers {
		g.Go(func() error {
			listing, err := s.api.GetListing(ctx, sess, o.ListingID)
			slot := cardSlot{listingID: o.ListingID, state: CardReady, listing: listing}
			if err != nil || listing == nil {
				s.logger.Debug("listing enrichment failed",
					zap.Int64("offerID", o.OfferID), zap.Int64("listingID", o.ListingID), zap.Error(err))
				slot = cardSlot{listingID: o.ListingID, state: CardFailed}
			}
			if !st.setCard(o.OfferID, slot) {
				s.logger.Debug("stale listing enrichment dropped",
					zap.Int64("offerID", o.OfferID), zap.Int64("listingID", o.ListingID))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) offerFor(ctx context.Context, sess model.Session, st *userState, offerID int64, role model.Role, action model.Action) (model.Offer, error) {
	st.mu.Lock()
	loaded := st.offersLoaded
	st.mu.Unlock()
	if !loaded {
		if _, err := s.LoadOffers(ctx, sess); err != nil {
			return model.Offer{}, err
		}
	}

	offer, ok := st.findOffer(offerID, role)
	if !ok {
		s.warn(sess.UserID, msgOfferNotFound)
		return model.Offer{}, ErrOfferNotFound
	}
	if !model.Allows(model.OfferActions(role, offer.Status), action) {
		s.warn(sess.UserID, msgOfferActionNotAllowed)
		return model.Offer{}, fmt.Errorf("%w: %s on %s offer", ErrForbidden, action, offer.Status)
	}
	return offer, nil
}

// UpdateOfferStatus принимает или отклоняет полученное предложение.
// После принятия возвращается подсказка перейти к сделкам.
func (s *Service) UpdateOfferStatus(ctx context.Context, sess model.Session, offerID int64, status model.OfferStatus) (*OfferUpdate, error) {
	if !sess.Authenticated() {
		return nil, ErrUnauthenticated
	}

	action := model.ActionAccept
	switch status {
	case model.OfferStatusAccepted:
	case model.OfferStatusRejected:
		action = model.ActionReject
	default:
		s.warn(sess.UserID, ErrInvalidStatus.Error())
		return nil, ErrInvalidStatus
	}

	st := s.state(sess)
	offer, err := s.offerFor(ctx, sess, st, offerID, model.RoleSeller, action)
	if err != nil {
		return nil, err
	}

	release, err := s.beginAction(sess, st, action, offerID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.api.UpdateOfferStatus(ctx, sess, offerID, status); err != nil {
		s.fail(sess.UserID, msgOfferUpdateFailed, err)
		return nil, fmt.Errorf("update offer status: %w", err)
	}

	st.patchOfferStatus(offerID, status)
	s.markDirty(sess.UserID)

	offer.Status = status
	res := &OfferUpdate{
		Offer: OfferCard{
			Offer:   offer,
			Role:    model.RoleSeller,
			Actions: model.OfferActions(model.RoleSeller, status),
			Card:    CardReady,
		},
	}
	st.mu.Lock()
	if slot, ok := st.cards[offerID]; ok {
		res.Offer.Card, res.Offer.Listing = slot.state, slot.listing
	}
	st.mu.Unlock()

	if status == model.OfferStatusAccepted {
		s.notifier.Notify(sess.UserID, model.LevelSuccess, msgOfferAccepted)
		res.NavigateTo = DealsPath
	} else {
		s.notifier.Notify(sess.UserID, model.LevelSuccess, msgOfferRejected)
	}
	return res, nil
}

// DeleteOffer удаляет отправленное покупателем предложение, пока продавец на него не ответил.
func (s *Service) DeleteOffer(ctx context.Context, sess model.Session, offerID int64) error {
	if !sess.Authenticated() {
		return ErrUnauthenticated
	}
	st := s.state(sess)

	if _, err := s.offerFor(ctx, sess, st, offerID, model.RoleBuyer, model.ActionDelete); err != nil {
		return err
	}

	release, err := s.beginAction(sess, st, model.ActionDelete, offerID)
	if err != nil {
		return err
	}
	defer release()

	if err := s.api.DeleteOffer(ctx, sess, offerID); err != nil {
		s.fail(sess.UserID, msgOfferDeleteFailed, err)
		return fmt.Errorf("delete offer: %w", err)
	}

	st.removeOffer(offerID)
	s.markDirty(sess.UserID)
	s.notifier.Notify(sess.UserID, model.LevelSuccess, msgOfferDeleted)
	return nil
}

// CreateOffer отправляет предложение цены по объявлению.
// Если сервер не вернул предложение, оно появится в списке после фоновой сверки.
func (s *Service) CreateOffer(ctx context.Context, sess model.Session, listingID, proposedPrice int64) (*model.Offer, error) {
	if !sess.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if proposedPrice <= 0 {
		s.warn(sess.UserID, validation.ErrProposedPriceInvalid.Error())
		return nil, validation.ErrProposedPriceInvalid
	}
	st := s.state(sess)

	release, err := s.beginAction(sess, st, actionOffer, listingID)
	if err != nil {
		return nil, err
	}
	defer release()

	offer, err := s.api.CreateOffer(ctx, sess, marketplace.CreateOfferRequest{
		BuyerID:       sess.UserID,
		ListingID:     listingID,
		ProposedPrice: proposedPrice,
	})
	if err != nil {
		s.fail(sess.UserID, msgOfferCreateFailed, err)
		return nil, fmt.Errorf("create offer: %w", err)
	}

	if offer != nil {
		st.appendSent(*offer)
	}
	s.markDirty(sess.UserID)
	s.notifier.Notify(sess.UserID, model.LevelSuccess, msgOfferCreated)
	return offer, nil
}
