package service

// Тексты уведомлений, которые видит пользователь.
const (
	msgLoadDealsFailed       = "Failed to load deals"
	msgLoadOffersFailed      = "Failed to load offers"
	msgLoadSitesFailed       = "Failed to load platform sites"
	msgDealNotFound          = "Deal not found"
	msgOfferNotFound         = "Offer not found"
	msgActionNotAllowed      = "This action is not available for the deal"
	msgOfferActionNotAllowed = "This action is not available for the offer"
	msgActionInFlight        = "The previous action is still in progress"

	msgAssignFailed = "Failed to assign platform site"
	msgAssigned     = "Platform site and meeting time assigned"

	msgRejectPrompt = "Reject this deal? This cannot be undone."
	msgRejectFailed = "Failed to reject deal"
	msgRejected     = "Deal rejected"

	msgCheckoutFailed      = "Failed to start payment"
	msgCheckoutStoreFailed = "Failed to remember the deal being paid"
	msgCheckoutNotFound    = "Could not find the deal for this payment"
	msgConfirmFailed       = "Failed to confirm deal payment"
	msgPaymentConfirmed    = "Payment confirmed"
	msgPaymentCancelled    = "Payment cancelled"

	msgReviewFailed    = "Failed to submit review"
	msgReviewSubmitted = "Review submitted"

	msgOfferUpdateFailed = "Failed to update offer"
	msgOfferAccepted     = "Offer accepted. A deal has been created"
	msgOfferRejected     = "Offer rejected"
	msgOfferDeleteFailed = "Failed to delete offer"
	msgOfferDeleted      = "Offer deleted"
	msgOfferCreateFailed = "Failed to send offer"
	msgOfferCreated      = "Offer sent"

	msgInspectionSubmitFailed = "Failed to create inspection order"
	msgInspectionStoreFailed  = "Failed to remember the inspection order"
	msgInspectionSubmitted    = "Inspection order created"
	msgInspectionCancelled    = "Inspection payment was cancelled"
	msgInspectionMissing      = "Inspection order not found. Please restart the booking"
	msgInspectionFailed       = "Failed to confirm inspection payment"
	msgInspectionPaid         = "Inspection payment confirmed"
)
