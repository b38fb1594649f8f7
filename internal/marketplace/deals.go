package marketplace

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/mmeshcher/evmarket-lifecycle/internal/model"
)

// AssignSiteRequest содержит тело запроса назначения площадки и времени встречи.
type AssignSiteRequest struct {
	OfferID        int64  `json:"offerId"`
	PlatformSiteID int64  `json:"platformSiteId"`
	BalanceDue     *int64 `json:"balanceDue,omitempty"`
	ScheduledAt    string `json:"scheduledAt"`
}

// CheckoutSession описывает платёжную сессию, открываемую в новой вкладке.
type CheckoutSession struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// DealsBySeller возвращает сделки, в которых пользователь выступает продавцом.
func (c *Client) DealsBySeller(ctx context.Context, sess model.Session, sellerID int64) ([]model.Deal, error) {
	return c.listDeals(ctx, sess, "/api/deals/seller/"+strconv.FormatInt(sellerID, 10))
}

// DealsByBuyer возвращает сделки, в которых пользователь выступает покупателем.
func (c *Client) DealsByBuyer(ctx context.Context, sess model.Session, buyerID int64) ([]model.Deal, error) {
	return c.listDeals(ctx, sess, "/api/deals/buyer/"+strconv.FormatInt(buyerID, 10))
}

func (c *Client) listDeals(ctx context.Context, sess model.Session, path string) ([]model.Deal, error) {
	resp, err := c.do(ctx, sess, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var deals []model.Deal
	if err := decodeEnvelope(resp, &deals); err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	return deals, nil
}

// AssignSite назначает площадку и время встречи и возвращает обновлённую сделку.
func (c *Client) AssignSite(ctx context.Context, sess model.Session, dealID int64, req AssignSiteRequest) (*model.Deal, error) {
	resp, err := c.do(ctx, sess, http.MethodPut, dealPath(dealID, "assign-site"), nil, req)
	if err != nil {
		return nil, err
	}

	var deal model.Deal
	if err := decodeEnvelope(resp, &deal); err != nil {
		return nil, fmt.Errorf("assign site: %w", err)
	}
	return &deal, nil
}

// RejectDeal отменяет сделку.
func (c *Client) RejectDeal(ctx context.Context, sess model.Session, dealID int64) error {
	resp, err := c.do(ctx, sess, http.MethodPost, dealPath(dealID, "reject"), nil, nil)
	if err != nil {
		return err
	}
	if err := expectAck(resp); err != nil {
		return fmt.Errorf("reject deal: %w", err)
	}
	return nil
}

// ConfirmDeal подтверждает оплату сделки после возврата с платёжной страницы.
func (c *Client) ConfirmDeal(ctx context.Context, sess model.Session, dealID int64) error {
	resp, err := c.do(ctx, sess, http.MethodPost, dealPath(dealID, "confirm"), nil, nil)
	if err != nil {
		return err
	}
	if err := expectAck(resp); err != nil {
		return fmt.Errorf("confirm deal: %w", err)
	}
	return nil
}

// CheckoutDeal создаёт платёжную сессию по сделке.
func (c *Client) CheckoutDeal(ctx context.Context, sess model.Session, dealID int64) (*CheckoutSession, error) {
	resp, err := c.do(ctx, sess, http.MethodPost, dealPath(dealID, "checkout"), nil, struct{}{})
	if err != nil {
		return nil, err
	}

	var cs CheckoutSession
	if err := decodeEnvelope(resp, &cs); err != nil {
		return nil, fmt.Errorf("checkout deal: %w", err)
	}
	if cs.URL == "" {
		return nil, fmt.Errorf("checkout deal: empty checkout url")
	}
	return &cs, nil
}

// ActivePlatformSites возвращает действующие площадки.
func (c *Client) ActivePlatformSites(ctx context.Context, sess model.Session) ([]model.PlatformSite, error) {
	resp, err := c.do(ctx, sess, http.MethodGet, "/api/platform-sites/active", nil, nil)
	if err != nil {
		return nil, err
	}

	var sites []model.PlatformSite
	if err := decodeEnvelope(resp, &sites); err != nil {
		return nil, fmt.Errorf("list platform sites: %w", err)
	}
	return sites, nil
}

// CreateReview публикует отзыв по завершённой сделке.
func (c *Client) CreateReview(ctx context.Context, sess model.Session, review model.Review) (*model.Review, error) {
	resp, err := c.do(ctx, sess, http.MethodPost, "/api/reviews", nil, review)
	if err != nil {
		return nil, err
	}

	var created model.Review
	if err := decodeRaw(resp, &created); err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}
	return &created, nil
}

func dealPath(dealID int64, action string) string {
	return "/api/deals/" + strconv.FormatInt(dealID, 10) + "/" + action
}
