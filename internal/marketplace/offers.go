package marketplace

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mmeshcher/evmarket-lifecycle/internal/model"
)

// CreateOfferRequest содержит тело запроса нового предложения цены.
type CreateOfferRequest struct {
	BuyerID       int64 `json:"buyerId"`
	ListingID     int64 `json:"listingId"`
	ProposedPrice int64 `json:"proposedPrice"`
}

// CreateOffer создаёт предложение цены. Форма ответа у сервера не зафиксирована,
// поэтому возвращённое предложение может быть nil.
func (c *Client) CreateOffer(ctx context.Context, sess model.Session, req CreateOfferRequest) (*model.Offer, error) {
	resp, err := c.do(ctx, sess, http.MethodPost, "/api/offers", nil, req)
	if err != nil {
		return nil, err
	}

	var offer model.Offer
	if err := decodeRaw(resp, &offer); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("create offer: %w", err)
		}
		return nil, nil
	}
	if offer.OfferID == 0 {
		return nil, nil
	}
	return &offer, nil
}

// OffersBySeller возвращает предложения, полученные продавцом.
func (c *Client) OffersBySeller(ctx context.Context, sess model.Session, sellerID int64) ([]model.Offer, error) {
	return c.listOffers(ctx, sess, "/api/offers/seller/"+strconv.FormatInt(sellerID, 10))
}

// OffersByBuyer возвращает предложения, отправленные покупателем.
func (c *Client) OffersByBuyer(ctx context.Context, sess model.Session, buyerID int64) ([]model.Offer, error) {
	return c.listOffers(ctx, sess, "/api/offers/buyer/"+strconv.FormatInt(buyerID, 10))
}

func (c *Client) listOffers(ctx context.Context, sess model.Session, path string) ([]model.Offer, error) {
	resp, err := c.do(ctx, sess, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var offers []model.Offer
	if err := decodeEnvelope(resp, &offers); err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	return offers, nil
}

// UpdateOfferStatus принимает или отклоняет предложение. Статус передаётся параметром запроса.
func (c *Client) UpdateOfferStatus(ctx context.Context, sess model.Session, offerID int64, status model.OfferStatus) error {
	q := url.Values{}
	q.Set("status", string(status))

	resp, err := c.do(ctx, sess, http.MethodPut, "/api/offers/"+strconv.FormatInt(offerID, 10)+"/status", q, nil)
	if err != nil {
		return err
	}
	if err := decodeEnvelope(resp, nil); err != nil {
		return fmt.Errorf("update offer status: %w", err)
	}
	return nil
}

// DeleteOffer удаляет отправленное предложение.
func (c *Client) DeleteOffer(ctx context.Context, sess model.Session, offerID int64) error {
	resp, err := c.do(ctx, sess, http.MethodDelete, "/api/offers/"+strconv.FormatInt(offerID, 10), nil, nil)
	if err != nil {
		return err
	}
	if err := expectAck(resp); err != nil {
		return fmt.Errorf("delete offer: %w", err)
	}
	return nil
}

// GetListing возвращает данные объявления для карточки предложения.
func (c *Client) GetListing(ctx context.Context, sess model.Session, listingID int64) (*model.Listing, error) {
	resp, err := c.do(ctx, sess, http.MethodGet, "/api/listings/"+strconv.FormatInt(listingID, 10), nil, nil)
	if err != nil {
		return nil, err
	}

	var listing model.Listing
	if err := decodeEnvelope(resp, &listing); err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return &listing, nil
}
