package billing

import "errors"

var (
	ErrMissingFields         = errors.New("user id, plan and billing cycle are required")
	ErrUnknownPlan           = errors.New("unknown plan")
	ErrUnknownCycle          = errors.New("unknown billing cycle")
	ErrUserNotFound          = errors.New("user not found")
	ErrGatewayNotConfigured  = errors.New("payment gateway is not configured")
	ErrGatewayNotFound       = errors.New("gateway resource not found")
	ErrPaymentUserMismatch   = errors.New("payment belongs to another user")
	ErrInvalidCheckoutFields = errors.New("invalid checkout request")
)
