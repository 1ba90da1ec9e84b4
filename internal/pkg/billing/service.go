package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/nutrinea/nutrinea/app/models"
	"github.com/nutrinea/nutrinea/internal/pkg/entitlements"
)

const (
	checkoutDueDays  = 3
	gatewayDateTmpl  = "2006-01-02"
	maxLogPageLimit  = 200
	defaultLogsLimit = 50
)

// Service owns every write to a user's subscription state.
type Service struct {
	repo     Repository
	gateway  Gateway
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates a billing service. gateway may be nil when no gateway
// key is configured; gateway-backed operations then fail with
// ErrGatewayNotConfigured.
func NewService(repo Repository, gateway Gateway) *Service {
	return &Service{
		repo:     repo,
		gateway:  gateway,
		validate: validator.New(),
		now:      time.Now,
	}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, gateway Gateway) *Service {
	return NewService(NewRepository(db), gateway)
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Repository() Repository {
	return s.repo
}

func (s *Service) Gateway() Gateway {
	return s.gateway
}

// ApplyPlan activates plan for one billing cycle starting now. Calling it
// twice with the same arguments recomputes the expiry from the current time.
func (s *Service) ApplyPlan(ctx context.Context, userID string, plan PlanName, cycle BillingCycle, externalSubscriptionID string) (*SubscriptionChange, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || plan == "" || cycle == "" {
		return nil, fmt.Errorf("%w (user=%q plan=%q cycle=%q)", ErrMissingFields, userID, plan, cycle)
	}
	status, err := plan.Status()
	if err != nil {
		return nil, err
	}
	if !cycle.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCycle, string(cycle))
	}

	expiresAt := AddCycle(s.now(), cycle)
	update := models.SubscriptionUpdate{
		Status:    status,
		ExpiresAt: &expiresAt,
	}
	subID := strings.TrimSpace(externalSubscriptionID)
	if subID != "" {
		update.ExternalSubscriptionID = &subID
	}

	if err := s.repo.UpdateSubscription(ctx, userID, update); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return nil, err
	}

	log.Infof("[Billing] user %s set to %s until %s", userID, status, expiresAt.Format(time.RFC3339))
	return &SubscriptionChange{
		UserID:                 userID,
		Status:                 status,
		ExpiresAt:              &expiresAt,
		ExternalSubscriptionID: subID,
		Message:                fmt.Sprintf("user %s upgraded to %s (%s) until %s", userID, status, cycle, expiresAt.Format(gatewayDateTmpl)),
	}, nil
}

// Cancel demotes the user immediately. The upstream subscription is cancelled
// best-effort first; a gateway failure never blocks the local demotion.
func (s *Service) Cancel(ctx context.Context, userID string) (*SubscriptionChange, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if subID := user.SubscriptionID(); subID != "" {
		if s.gateway == nil {
			log.Warnf("[Billing] gateway not configured, skipping upstream cancel of %s for user %s", subID, user.ID)
		} else if err := s.gateway.CancelSubscription(ctx, subID); err != nil {
			log.Warnf("[Billing] upstream cancel of %s for user %s failed: %v", subID, user.ID, err)
		}
	}

	return s.demote(ctx, user.ID, "subscription cancelled")
}

// Revoke demotes the user after the gateway reported the subscription
// inactive. It ends in the same state as Cancel but skips the upstream
// DELETE, since the gateway already considers the subscription inactive.
func (s *Service) Revoke(ctx context.Context, userID string) (*SubscriptionChange, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.demote(ctx, user.ID, "subscription deactivated by gateway")
}

func (s *Service) demote(ctx context.Context, userID, reason string) (*SubscriptionChange, error) {
	now := s.now()
	update := models.SubscriptionUpdate{
		Status:                      models.SUBSCRIPTION_FREE,
		ExpiresAt:                   &now,
		ClearExternalSubscriptionID: true,
	}
	if err := s.repo.UpdateSubscription(ctx, userID, update); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return nil, err
	}
	log.Infof("[Billing] user %s demoted to free: %s", userID, reason)
	return &SubscriptionChange{
		UserID:    userID,
		Status:    models.SUBSCRIPTION_FREE,
		ExpiresAt: &now,
		Message:   fmt.Sprintf("user %s moved to free: %s", userID, reason),
	}, nil
}

// SubscriptionView is the read model served to the rest of the product.
type SubscriptionView struct {
	UserID                 string              `json:"user_id"`
	EffectiveStatus        entitlements.Plan   `json:"effective_status"`
	StoredStatus           string              `json:"stored_status"`
	ExpiresAt              *time.Time          `json:"expires_at"`
	ExternalSubscriptionID string              `json:"external_subscription_id,omitempty"`
	Limits                 entitlements.Limits `json:"limits"`
}

// GetSubscription reads the user and derives the effective tier at read time.
func (s *Service) GetSubscription(ctx context.Context, userID string) (*SubscriptionView, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	effective := user.EffectiveStatus(s.now())
	return &SubscriptionView{
		UserID:                 user.ID,
		EffectiveStatus:        effective,
		StoredStatus:           user.SubscriptionStatus,
		ExpiresAt:              user.SubscriptionExpiresAt,
		ExternalSubscriptionID: user.SubscriptionID(),
		Limits:                 entitlements.LimitsFor(effective),
	}, nil
}

// CheckoutRequest starts a purchase for a user.
type CheckoutRequest struct {
	UserID      string `json:"-" validate:"required,max=128"`
	Plan        string `json:"plan" validate:"required"`
	Cycle       string `json:"cycle" validate:"required"`
	BillingType string `json:"billing_type" validate:"required,oneof=PIX BOLETO CREDIT_CARD UNDEFINED"`
	Name        string `json:"name" validate:"required,min=2,max=150"`
	Email       string `json:"email" validate:"omitempty,email"`
	CpfCnpj     string `json:"cpf_cnpj" validate:"required,numeric,min=11,max=14"`
	Recurring   bool   `json:"recurring"`
}

type CheckoutResult struct {
	CustomerID     string  `json:"customer_id"`
	PaymentID      string  `json:"payment_id,omitempty"`
	SubscriptionID string  `json:"subscription_id,omitempty"`
	InvoiceURL     string  `json:"invoice_url,omitempty"`
	Value          float64 `json:"value"`
	Description    string  `json:"description"`
}

// StartCheckout links the user to a gateway customer and opens a charge or a
// recurring subscription whose externalReference is the user id.
func (s *Service) StartCheckout(ctx context.Context, in CheckoutRequest) (*CheckoutResult, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCheckoutFields, err)
	}
	plan := ParsePlanName(in.Plan)
	if plan == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, in.Plan)
	}
	cycle := ParseBillingCycle(in.Cycle)
	if cycle == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCycle, in.Cycle)
	}
	price, err := PriceFor(plan, cycle)
	if err != nil {
		return nil, err
	}
	if s.gateway == nil {
		return nil, ErrGatewayNotConfigured
	}

	user, err := s.getUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	customerID, err := s.ensureCustomer(ctx, user, in)
	if err != nil {
		return nil, err
	}

	description := ChargeDescription(plan, cycle)
	result := &CheckoutResult{CustomerID: customerID, Value: price.Value, Description: description}
	today := s.now()

	if in.Recurring {
		sub, err := s.gateway.CreateSubscription(ctx, SubscriptionInput{
			Customer:          customerID,
			BillingType:       in.BillingType,
			Value:             price.Value,
			NextDueDate:       today.Format(gatewayDateTmpl),
			Cycle:             cycle.gatewayCycle(),
			Description:       description,
			ExternalReference: user.ID,
		})
		if err != nil {
			return nil, err
		}
		result.SubscriptionID = sub.ID
		log.Infof("[Billing] opened subscription %s for user %s (%s)", sub.ID, user.ID, description)
		return result, nil
	}

	payment, err := s.gateway.CreatePayment(ctx, ChargeInput{
		Customer:          customerID,
		BillingType:       in.BillingType,
		Value:             price.Value,
		DueDate:           today.AddDate(0, 0, checkoutDueDays).Format(gatewayDateTmpl),
		Description:       description,
		ExternalReference: user.ID,
	})
	if err != nil {
		return nil, err
	}
	result.PaymentID = payment.ID
	result.InvoiceURL = payment.InvoiceURL
	log.Infof("[Billing] opened payment %s for user %s (%s)", payment.ID, user.ID, description)
	return result, nil
}

func (s *Service) ensureCustomer(ctx context.Context, user *models.User, in CheckoutRequest) (string, error) {
	if id := user.CustomerID(); id != "" {
		return id, nil
	}

	customer, err := s.gateway.FindCustomerByCpfCnpj(ctx, in.CpfCnpj)
	if err != nil {
		return "", err
	}
	if customer == nil {
		customer, err = s.gateway.CreateCustomer(ctx, CustomerInput{
			Name:              in.Name,
			Email:             in.Email,
			CpfCnpj:           in.CpfCnpj,
			ExternalReference: user.ID,
		})
		if err != nil {
			return "", err
		}
	}
	if err := s.repo.SetExternalCustomerID(ctx, user.ID, customer.ID); err != nil {
		return "", err
	}
	return customer.ID, nil
}

var confirmedPaymentStatuses = map[string]bool{
	"RECEIVED":         true,
	"CONFIRMED":        true,
	"RECEIVED_IN_CASH": true,
}

type VerificationResult struct {
	PaymentID string              `json:"payment_id"`
	Status    string              `json:"status"`
	Confirmed bool                `json:"confirmed"`
	Change    *SubscriptionChange `json:"change,omitempty"`
	Message   string              `json:"message"`
}

// VerifyPayment pulls a payment from the gateway and applies its plan when the
// payment is settled. It complements webhook delivery for clients returning
// from checkout.
func (s *Service) VerifyPayment(ctx context.Context, userID, paymentID string) (*VerificationResult, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(paymentID) == "" {
		return nil, ErrMissingFields
	}
	if s.gateway == nil {
		return nil, ErrGatewayNotConfigured
	}
	payment, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if ref := strings.TrimSpace(payment.ExternalReference); ref != "" && ref != userID {
		return nil, fmt.Errorf("%w: payment %s", ErrPaymentUserMismatch, paymentID)
	}

	result := &VerificationResult{PaymentID: payment.ID, Status: payment.Status}
	if !confirmedPaymentStatuses[strings.ToUpper(payment.Status)] {
		result.Message = fmt.Sprintf("payment %s not confirmed yet (status %s)", payment.ID, payment.Status)
		return result, nil
	}

	pc := PlanCycleForPayment(payment)
	change, err := s.ApplyPlan(ctx, userID, pc.Plan, pc.Cycle, payment.Subscription)
	if err != nil {
		return nil, err
	}
	result.Confirmed = true
	result.Change = change
	result.Message = change.Message
	return result, nil
}

// PlanCycleForPayment prefers structured metadata and falls back to the
// description, field by field.
func PlanCycleForPayment(p *AsaasPayment) PlanCycle {
	if p == nil {
		return PlanCycle{}
	}
	fromDesc := ExtractPlanCycle(p.Description)
	out := PlanCycle{
		Plan:  ParsePlanName(p.Metadata.Plan),
		Cycle: ParseBillingCycle(p.Metadata.BillingCycle),
	}
	if out.Plan == "" {
		out.Plan = fromDesc.Plan
	}
	if out.Cycle == "" {
		out.Cycle = fromDesc.Cycle
	}
	return out
}

// ListWebhookLogs returns audit entries newest first.
func (s *Service) ListWebhookLogs(ctx context.Context, offset, limit int) ([]models.WebhookLog, int64, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultLogsLimit
	}
	if limit > maxLogPageLimit {
		limit = maxLogPageLimit
	}
	return s.repo.ListWebhookLogs(ctx, offset, limit)
}

func (s *Service) getUser(ctx context.Context, userID string) (*models.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrMissingFields
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return nil, err
	}
	return user, nil
}
