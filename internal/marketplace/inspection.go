package marketplace

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/mmeshcher/evmarket-lifecycle/internal/model"
)

// InspectionOrderRequest содержит тело запроса на платную проверку объявления.
type InspectionOrderRequest struct {
	ListingID    int64  `json:"listingId"`
	ScheduledAt  string `json:"scheduledAt,omitempty"`
	ProvinceCode string `json:"provinceCode,omitempty"`
	DistrictCode string `json:"districtCode,omitempty"`
	WardCode     string `json:"wardCode,omitempty"`
	Street       string `json:"street,omitempty"`
	Price        *int64 `json:"price,omitempty"`
}

// SubmitInspectionOrder создаёт заказ проверки. Сервер отвечает голым числом, идентификатором заказа.
func (c *Client) SubmitInspectionOrder(ctx context.Context, sess model.Session, req InspectionOrderRequest) (int64, error) {
	resp, err := c.do(ctx, sess, http.MethodPost, "/api/inspection-orders", nil, req)
	if err != nil {
		return 0, err
	}

	var orderID int64
	if err := decodeRaw(resp, &orderID); err != nil {
		return 0, fmt.Errorf("submit inspection order: %w", err)
	}
	if orderID <= 0 {
		return 0, fmt.Errorf("submit inspection order: invalid order id %d", orderID)
	}
	return orderID, nil
}

// ConfirmInspectionPayment подтверждает оплату заказа проверки.
func (c *Client) ConfirmInspectionPayment(ctx context.Context, sess model.Session, orderID int64) error {
	path := "/api/inspection-orders/" + strconv.FormatInt(orderID, 10) + "/confirm"
	resp, err := c.do(ctx, sess, http.MethodPost, path, nil, struct{}{})
	if err != nil {
		return err
	}
	if err := expectAck(resp); err != nil {
		return fmt.Errorf("confirm inspection payment: %w", err)
	}
	return nil
}
