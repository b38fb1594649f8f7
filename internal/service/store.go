package service

import (
	"sync"

	"github.com/mmeshcher/evmarket-lifecycle/internal/model"
)

// CardState описывает состояние обогащения карточки предложения данными объявления.
type CardState string

const (
	CardLoading CardState = "loading"
	CardReady   CardState = "ready"
	CardFailed  CardState = "failed"
)

// cardSlot хранит результат обогащения карточки. Результат привязан к объявлению,
// поэтому переживает перезагрузку списков, пока предложение ссылается на то же объявление.
type cardSlot struct {
	listingID int64
	state     CardState
	listing   *model.Listing
}

// userState хранит временное представление сделок и предложений одного пользователя.
// Все списки упорядочены так, как их вернул сервер; изменения применяются по идентификатору.
type userState struct {
	mu sync.Mutex

	session model.Session

	dealsLoaded bool
	sellerDeals []model.Deal
	buyerDeals  []model.Deal

	offersLoaded bool
	received     []model.Offer
	sent         []model.Offer
	cards        map[int64]cardSlot

	sites []model.PlatformSite

	inFlight map[string]struct{}
}

func newUserState(sess model.Session) *userState {
	return &userState{
		session:  sess,
		cards:    make(map[int64]cardSlot),
		inFlight: make(map[string]struct{}),
	}
}

// begin отмечает действие как выполняющееся. Повторный вызов с тем же ключом до release отклоняется.
func (st *userState) begin(key string) (release func(), err error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, busy := st.inFlight[key]; busy {
		return nil, ErrActionInFlight
	}
	st.inFlight[key] = struct{}{}

	return func() {
		st.mu.Lock()
		delete(st.inFlight, key)
		st.mu.Unlock()
	}, nil
}

func (st *userState) replaceDeals(seller, buyer []model.Deal) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.sellerDeals = seller
	st.buyerDeals = buyer
	st.dealsLoaded = true
}

// mergeDeal заменяет строку с тем же dealId в обоих списках, сохраняя порядок.
func (st *userState) mergeDeal(d model.Deal) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.sellerDeals = mergeDealByID(st.sellerDeals, d)
	st.buyerDeals = mergeDealByID(st.buyerDeals, d)
}

func mergeDealByID(list []model.Deal, d model.Deal) []model.Deal {
	for i := range list {
		if list[i].DealID == d.DealID {
			out := make([]model.Deal, len(list))
			copy(out, list)
			out[i] = d
			return out
		}
	}
	return list
}

// findDeal ищет сделку в списке указанной роли.
func (st *userState) findDeal(dealID int64, role model.Role) (model.Deal, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	list := st.buyerDeals
	if role == model.RoleSeller {
		list = st.sellerDeals
	}
	for _, d := range list {
		if d.DealID == dealID {
			return d, true
		}
	}
	return model.Deal{}, false
}

// replaceOffers заменяет списки предложений. Предложение, уже виденное принятым или отклонённым,
// не возвращается в PENDING: такие ответы сервера считаются устаревшими.
// Карточки пропавших предложений и предложений, сменивших объявление, сбрасываются.
// Возвращает идентификаторы предложений, у которых был предотвращён откат статуса.
func (st *userState) replaceOffers(received, sent []model.Offer) (regressed []int64) {
	st.mu.Lock()
	defer st.mu.Unlock()

	known := make(map[int64]model.OfferStatus, len(st.received)+len(st.sent))
	for _, o := range st.received {
		known[o.OfferID] = o.Status
	}
	for _, o := range st.sent {
		known[o.OfferID] = o.Status
	}

	keep := func(list []model.Offer) []model.Offer {
		out := make([]model.Offer, len(list))
		copy(out, list)
		for i := range out {
			prev, ok := known[out[i].OfferID]
			if ok && prev.Terminal() && out[i].Status == model.OfferStatusPending {
				out[i].Status = prev
				regressed = append(regressed, out[i].OfferID)
			}
		}
		return out
	}

	st.received = keep(received)
	st.sent = keep(sent)
	st.offersLoaded = true
	st.pruneCards()
	return regressed
}

// pruneCards удаляет карточки, которым больше не соответствует предложение в списках.
func (st *userState) pruneCards() {
	current := make(map[int64]int64, len(st.received)+len(st.sent))
	for _, list := range [][]model.Offer{st.received, st.sent} {
		for _, o := range list {
			current[o.OfferID] = o.ListingID
		}
	}
	for offerID, slot := range st.cards {
		if listingID, ok := current[offerID]; !ok || listingID != slot.listingID {
			delete(st.cards, offerID)
		}
	}
}

// patchOfferStatus меняет статус предложения по идентификатору в обоих списках.
func (st *userState) patchOfferStatus(offerID int64, status model.OfferStatus) {
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, list := range [][]model.Offer{st.received, st.sent} {
		for i := range list {
			if list[i].OfferID == offerID {
				list[i].Status = status
			}
		}
	}
}

func (st *userState) removeOffer(offerID int64) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.received = removeOfferByID(st.received, offerID)
	st.sent = removeOfferByID(st.sent, offerID)
	delete(st.cards, offerID)
}

func removeOfferByID(list []model.Offer, offerID int64) []model.Offer {
	out := make([]model.Offer, 0, len(list))
	for _, o := range list {
		if o.OfferID != offerID {
			out = append(out, o)
		}
	}
	return out
}

func (st *userState) appendSent(o model.Offer) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.sent = append(st.sent, o)
}

func (st *userState) findOffer(offerID int64, role model.Role) (model.Offer, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	list := st.sent
	if role == model.RoleSeller {
		list = st.received
	}
	for _, o := range list {
		if o.OfferID == offerID {
			return o, true
		}
	}
	return model.Offer{}, false
}

// pendingCards возвращает предложения, для которых обогащение ещё не запускалось, и помечает их загружающимися.
// Карточки, которые уже загружаются или загружены, повторно не запрашиваются.
func (st *userState) pendingCards() []model.Offer {
	st.mu.Lock()
	defer st.mu.Unlock()

	var pending []model.Offer
	for _, list := range [][]model.Offer{st.received, st.sent} {
		for _, o := range list {
			if _, ok := st.cards[o.OfferID]; ok {
				continue
			}
			st.cards[o.OfferID] = cardSlot{listingID: o.ListingID, state: CardLoading}
			pending = append(pending, o)
		}
	}
	return pending
}

// setCard записывает результат обогащения, если карточка всё ещё ждёт данные этого объявления.
func (st *userState) setCard(offerID int64, slot cardSlot) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	cur, ok := st.cards[offerID]
	if !ok || cur.state != CardLoading || cur.listingID != slot.listingID {
		return false
	}
	st.cards[offerID] = slot
	return true
}

func (st *userState) setSites(sites []model.PlatformSite) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sites = sites
}

func (st *userState) cachedSites() ([]model.PlatformSite, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sites, st.sites != nil
}

func (st *userState) dealsView() *DealsView {
	st.mu.Lock()
	defer st.mu.Unlock()

	return &DealsView{
		Seller: dealViews(st.sellerDeals, model.RoleSeller),
		Buyer:  dealViews(st.buyerDeals, model.RoleBuyer),
	}
}

func (st *userState) offersView() *OffersView {
	st.mu.Lock()
	defer st.mu.Unlock()

	return &OffersView{
		Received: st.offerCards(st.received, model.RoleSeller),
		Sent:     st.offerCards(st.sent, model.RoleBuyer),
	}
}

func (st *userState) offerCards(list []model.Offer, role model.Role) []OfferCard {
	cards := make([]OfferCard, 0, len(list))
	for _, o := range list {
		card := OfferCard{
			Offer:   o,
			Role:    role,
			Actions: model.OfferActions(role, o.Status),
			Card:    CardLoading,
		}
		if slot, ok := st.cards[o.OfferID]; ok {
			card.Card = slot.state
			card.Listing = slot.listing
		}
		cards = append(cards, card)
	}
	return cards
}

// DealView описывает сделку вместе с ролью пользователя и доступными ему действиями.
type DealView struct {
	model.Deal
	Role    model.Role     `json:"role"`
	Badge   string         `json:"badge"`
	Actions []model.Action `json:"actions"`
}

// DealsView содержит сделки пользователя в двух ролях.
type DealsView struct {
	Seller []DealView `json:"seller"`
	Buyer  []DealView `json:"buyer"`
}

// OfferCard описывает карточку предложения с данными объявления, если они уже загружены.
type OfferCard struct {
	model.Offer
	Role    model.Role     `json:"role"`
	Actions []model.Action `json:"actions"`
	Card    CardState      `json:"card"`
	Listing *model.Listing `json:"listing,omitempty"`
}

// OffersView содержит предложения, полученные и отправленные пользователем.
type OffersView struct {
	Received []OfferCard `json:"received"`
	Sent     []OfferCard `json:"sent"`
}

func dealViews(list []model.Deal, role model.Role) []DealView {
	views := make([]DealView, 0, len(list))
	for _, d := range list {
		views = append(views, newDealView(d, role))
	}
	return views
}

func newDealView(d model.Deal, role model.Role) DealView {
	return DealView{
		Deal:    d,
		Role:    role,
		Badge:   d.Status.Badge(),
		Actions: model.DealActions(role, d.Status),
	}
}
