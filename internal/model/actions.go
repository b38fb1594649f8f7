package model

// Role описывает, с какой стороны пользователь участвует в сделке или предложении.
type Role string

const (
	RoleSeller Role = "seller"
	RoleBuyer  Role = "buyer"
)

// Action описывает действие, которое пользователь может выполнить над карточкой.
type Action string

const (
	ActionAssign   Action = "assign"
	ActionReject   Action = "reject"
	ActionCheckout Action = "checkout"
	ActionReview   Action = "review"
	ActionAccept   Action = "accept"
	ActionDelete   Action = "delete"
)

// DealActions возвращает действия, допустимые для роли при данном статусе сделки.
func DealActions(role Role, status DealStatus) []Action {
	var actions []Action
	switch role {
	case RoleSeller:
		if status == DealStatusInitialized || status == DealStatusAwaitingConfirmation {
			actions = append(actions, ActionAssign, ActionReject)
		}
	case RoleBuyer:
		// SCHEDULED намеренно не открывает оплату: полная таблица переходов известна только серверу.
		if status == DealStatusAwaitingConfirmation {
			actions = append(actions, ActionCheckout, ActionReject)
		}
		if status == DealStatusCompleted {
			actions = append(actions, ActionReview)
		}
	}
	return actions
}

// OfferActions возвращает действия, допустимые для роли при данном статусе предложения.
func OfferActions(role Role, status OfferStatus) []Action {
	switch role {
	case RoleSeller:
		if status == OfferStatusPending {
			return []Action{ActionAccept, ActionReject}
		}
	case RoleBuyer:
		if status == OfferStatusPending {
			return []Action{ActionDelete}
		}
	}
	return nil
}

// Allows сообщает, входит ли действие в список.
func Allows(actions []Action, a Action) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}
