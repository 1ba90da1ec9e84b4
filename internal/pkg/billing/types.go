package billing

import (
	"bytes"
	"encoding/json"
	"time"
)

// WebhookEvent is the envelope of an Asaas webhook delivery. Only the fields
// the reconciliation flow reads are mapped.
type WebhookEvent struct {
	ID           string             `json:"id"`
	Event        string             `json:"event"`
	DateCreated  string             `json:"dateCreated"`
	Payment      *AsaasPayment      `json:"payment"`
	Subscription *AsaasSubscription `json:"subscription"`
	Customer     *CustomerRef       `json:"customer"`
}

// PaymentMetadata carries the structured hints attached at checkout.
type PaymentMetadata struct {
	UserID       string `json:"userId"`
	Plan         string `json:"plan"`
	BillingCycle string `json:"billingCycle"`
}

type AsaasPayment struct {
	ID                string          `json:"id"`
	Customer          string          `json:"customer"`
	Subscription      string          `json:"subscription,omitempty"`
	Value             float64         `json:"value"`
	NetValue          float64         `json:"netValue,omitempty"`
	BillingType       string          `json:"billingType"`
	Status            string          `json:"status"`
	Description       string          `json:"description"`
	ExternalReference string          `json:"externalReference"`
	DueDate           string          `json:"dueDate"`
	InvoiceURL        string          `json:"invoiceUrl,omitempty"`
	Metadata          PaymentMetadata `json:"metadata"`
}

type AsaasSubscription struct {
	ID                string  `json:"id"`
	Customer          string  `json:"customer"`
	Status            string  `json:"status"`
	Cycle             string  `json:"cycle"`
	Value             float64 `json:"value"`
	BillingType       string  `json:"billingType"`
	Description       string  `json:"description"`
	ExternalReference string  `json:"externalReference"`
	NextDueDate       string  `json:"nextDueDate"`
	Deleted           bool    `json:"deleted"`
}

type AsaasCustomer struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	CpfCnpj           string `json:"cpfCnpj"`
	ExternalReference string `json:"externalReference"`
	Deleted           bool   `json:"deleted"`
}

// CustomerRef accepts either an embedded customer object or a bare customer id.
type CustomerRef struct {
	AsaasCustomer
}

func (c *CustomerRef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &c.ID)
	}
	return json.Unmarshal(trimmed, &c.AsaasCustomer)
}

// CustomerID returns the gateway customer id referenced by the event.
func (e *WebhookEvent) CustomerID() string {
	if e.Payment != nil && e.Payment.Customer != "" {
		return e.Payment.Customer
	}
	if e.Subscription != nil && e.Subscription.Customer != "" {
		return e.Subscription.Customer
	}
	if e.Customer != nil {
		return e.Customer.ID
	}
	return ""
}

// SubscriptionChange describes a write performed on a user's subscription.
type SubscriptionChange struct {
	UserID                 string     `json:"user_id"`
	Status                 string     `json:"status"`
	ExpiresAt              *time.Time `json:"expires_at"`
	ExternalSubscriptionID string     `json:"external_subscription_id,omitempty"`
	Message                string     `json:"message"`
}

// WebhookResponse is what the HTTP layer returns to the gateway.
type WebhookResponse struct {
	StatusCode int
	Message    string
}
