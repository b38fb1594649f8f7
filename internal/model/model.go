// Package model содержит доменные сущности сервиса сопровождения сделок маркетплейса.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Session описывает аутентифицированного пользователя и его токен доступа к API маркетплейса.
type Session struct {
	UserID   int64
	Username string
	Token    string
}

// Authenticated сообщает, привязана ли сессия к пользователю.
func (s Session) Authenticated() bool {
	return s.UserID > 0
}

// OfferStatus описывает статус предложения цены.
type OfferStatus string

const (
	OfferStatusPending  OfferStatus = "PENDING"
	OfferStatusAccepted OfferStatus = "ACCEPTED"
	OfferStatusRejected OfferStatus = "REJECTED"
	OfferStatusExpired  OfferStatus = "EXPIRED"
)

// Terminal сообщает, что продавец уже ответил на предложение.
func (s OfferStatus) Terminal() bool {
	return s == OfferStatusAccepted || s == OfferStatusRejected
}

// Offer описывает предложение цены покупателя по объявлению.
type Offer struct {
	OfferID       int64       `json:"offerId"`
	BuyerID       int64       `json:"buyerId"`
	BuyerName     string      `json:"buyerName,omitempty"`
	SellerID      int64       `json:"sellerId"`
	SellerName    string      `json:"sellerName,omitempty"`
	ListingID     int64       `json:"listingId"`
	ProposedPrice int64       `json:"proposedPrice"`
	Status        OfferStatus `json:"status"`
	CreatedAt     string      `json:"createdAt,omitempty"`
	ExpiresAt     string      `json:"expiresAt,omitempty"`
}

// DealStatus описывает статус сделки в том виде, в каком его сообщает сервер.
type DealStatus string

const (
	DealStatusInitialized          DealStatus = "INITIALIZED"
	DealStatusAwaitingConfirmation DealStatus = "AWAITING_CONFIRMATION"
	DealStatusScheduled            DealStatus = "SCHEDULED"
	DealStatusCompleted            DealStatus = "COMPLETED"
	DealStatusCancelled            DealStatus = "CANCELLED"
)

// Badge возвращает подпись статуса для карточки сделки.
// SCHEDULED и AWAITING_CONFIRMATION отображаются одинаково, хотя действия у них разные.
func (s DealStatus) Badge() string {
	switch s {
	case DealStatusInitialized:
		return "Initialized"
	case DealStatusAwaitingConfirmation, DealStatusScheduled:
		return "Awaiting payment"
	case DealStatusCompleted:
		return "Completed"
	case DealStatusCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

// Party содержит снимок данных участника сделки.
type Party struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username,omitempty"`
	FullName string `json:"fullName,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Deal описывает сделку, созданную после принятия предложения.
type Deal struct {
	DealID              int64      `json:"dealId"`
	OfferID             int64      `json:"offerId"`
	PlatformSiteID      *int64     `json:"platformSiteId,omitempty"`
	PlatformSiteName    string     `json:"platformSiteName,omitempty"`
	BalanceDue          *Amount    `json:"balanceDue,omitempty"`
	Status              DealStatus `json:"status"`
	ScheduledAt         string     `json:"scheduledAt,omitempty"`
	Buyer               Party      `json:"buyer"`
	Seller              Party      `json:"seller"`
	FeeAmount           *Amount    `json:"feeAmount,omitempty"`
	SellerReceiveAmount *Amount    `json:"sellerReceiveAmount,omitempty"`
	CreatedAt           string     `json:"createdAt,omitempty"`
	UpdatedAt           string     `json:"updatedAt,omitempty"`
}

// PlatformSite описывает площадку, на которой проводится встреча по сделке.
type PlatformSite struct {
	PlatformSiteID int64  `json:"platformSiteId"`
	Name           string `json:"name"`
	Address        string `json:"address,omitempty"`
	Province       string `json:"province,omitempty"`
	District       string `json:"district,omitempty"`
	Ward           string `json:"ward,omitempty"`
	Active         bool   `json:"active"`
}

// Review описывает отзыв покупателя о продавце по завершённой сделке.
type Review struct {
	ReviewID  int64   `json:"reviewId,omitempty"`
	DealID    int64   `json:"dealId"`
	AuthorID  int64   `json:"authorId"`
	TargetID  int64   `json:"targetId"`
	Rating    float64 `json:"rating"`
	Comment   string  `json:"comment,omitempty"`
	CreatedAt string  `json:"createdAt,omitempty"`
}

// Listing содержит данные объявления, которыми обогащается карточка предложения.
type Listing struct {
	ListingID    int64  `json:"listingId"`
	Title        string `json:"title"`
	Price        int64  `json:"price"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// InspectionOrder описывает заказ платной проверки объявления.
type InspectionOrder struct {
	OrderID      int64  `json:"orderId,omitempty"`
	ListingID    int64  `json:"listingId"`
	Status       string `json:"status,omitempty"`
	ScheduledAt  string `json:"scheduledAt,omitempty"`
	ProvinceCode string `json:"provinceCode,omitempty"`
	DistrictCode string `json:"districtCode,omitempty"`
	WardCode     string `json:"wardCode,omitempty"`
	Street       string `json:"street,omitempty"`
	Price        *int64 `json:"price,omitempty"`
}

// InspectionReportStatus описывает статус модерации отчёта о проверке.
type InspectionReportStatus string

const (
	InspectionReportPendingReview InspectionReportStatus = "PENDING_REVIEW"
	InspectionReportApproved      InspectionReportStatus = "APPROVED"
	InspectionReportRejected      InspectionReportStatus = "REJECTED"
)

// InspectionResult описывает итог проверки.
type InspectionResult string

const (
	InspectionResultPass InspectionResult = "PASS"
	InspectionResultFail InspectionResult = "FAIL"
)

// InspectionReport описывает отчёт о проверке объявления.
type InspectionReport struct {
	ReportID          int64                  `json:"reportId"`
	ListingID         int64                  `json:"listingId"`
	InspectionOrderID int64                  `json:"inspectionOrderId"`
	SourceType        string                 `json:"sourceType,omitempty"`
	Provider          string                 `json:"provider,omitempty"`
	Status            InspectionReportStatus `json:"status"`
	Result            InspectionResult       `json:"result,omitempty"`
}

// NotificationLevel описывает уровень уведомления пользователя.
type NotificationLevel string

const (
	LevelSuccess NotificationLevel = "success"
	LevelInfo    NotificationLevel = "info"
	LevelWarning NotificationLevel = "warning"
	LevelError   NotificationLevel = "error"
)

// Notification описывает уведомление, которое должен увидеть пользователь.
type Notification struct {
	ID        uuid.UUID         `json:"id"`
	Level     NotificationLevel `json:"level"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"createdAt"`
}
