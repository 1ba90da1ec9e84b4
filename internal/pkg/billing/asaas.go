package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/nutrinea/nutrinea/internal/pkg/env"
)

const (
	AsaasEnvironmentSandbox    = "sandbox"
	AsaasEnvironmentProduction = "production"

	asaasSandboxBaseURL    = "https://api-sandbox.asaas.com/v3"
	asaasProductionBaseURL = "https://api.asaas.com/v3"

	defaultAsaasTimeout = 15 * time.Second
)

// Gateway is the subset of the Asaas API the billing flow depends on.
type Gateway interface {
	CancelSubscription(ctx context.Context, subscriptionID string) error
	GetPayment(ctx context.Context, paymentID string) (*AsaasPayment, error)
	GetCustomer(ctx context.Context, customerID string) (*AsaasCustomer, error)
	FindCustomerByCpfCnpj(ctx context.Context, cpfCnpj string) (*AsaasCustomer, error)
	CreateCustomer(ctx context.Context, in CustomerInput) (*AsaasCustomer, error)
	CreatePayment(ctx context.Context, in ChargeInput) (*AsaasPayment, error)
	CreateSubscription(ctx context.Context, in SubscriptionInput) (*AsaasSubscription, error)
}

type CustomerInput struct {
	Name              string `json:"name"`
	Email             string `json:"email,omitempty"`
	CpfCnpj           string `json:"cpfCnpj"`
	ExternalReference string `json:"externalReference,omitempty"`
}

type ChargeInput struct {
	Customer          string  `json:"customer"`
	BillingType       string  `json:"billingType"`
	Value             float64 `json:"value"`
	DueDate           string  `json:"dueDate"`
	Description       string  `json:"description"`
	ExternalReference string  `json:"externalReference,omitempty"`
}

type SubscriptionInput struct {
	Customer          string  `json:"customer"`
	BillingType       string  `json:"billingType"`
	Value             float64 `json:"value"`
	NextDueDate       string  `json:"nextDueDate"`
	Cycle             string  `json:"cycle"`
	Description       string  `json:"description"`
	ExternalReference string  `json:"externalReference,omitempty"`
}

// AsaasConfig is resolved once at startup. The environment is explicit and
// never guessed from the shape of the key.
type AsaasConfig struct {
	APIKey      string
	Environment string
	BaseURL     string
	Timeout     time.Duration
}

// LoadAsaasConfig reads the gateway configuration from the environment.
func LoadAsaasConfig() (*AsaasConfig, error) {
	cfg := &AsaasConfig{
		APIKey:      strings.TrimSpace(env.GetEnv("ASAAS_API_KEY", "")),
		Environment: strings.ToLower(strings.TrimSpace(env.GetEnv("ASAAS_ENVIRONMENT", AsaasEnvironmentSandbox))),
		BaseURL:     strings.TrimSpace(env.GetEnv("ASAAS_BASE_URL", "")),
		Timeout:     defaultAsaasTimeout,
	}
	if raw := strings.TrimSpace(env.GetEnv("ASAAS_TIMEOUT_SECONDS", "")); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("invalid ASAAS_TIMEOUT_SECONDS: %q", raw)
		}
		cfg.Timeout = time.Duration(secs) * time.Second
	}
	switch cfg.Environment {
	case AsaasEnvironmentSandbox, AsaasEnvironmentProduction:
	default:
		return nil, fmt.Errorf("invalid ASAAS_ENVIRONMENT %q (expected sandbox or production)", cfg.Environment)
	}
	return cfg, nil
}

// ResolvedBaseURL returns the override when set, else the environment's default.
func (c *AsaasConfig) ResolvedBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	if c.Environment == AsaasEnvironmentProduction {
		return asaasProductionBaseURL
	}
	return asaasSandboxBaseURL
}

func (c *AsaasConfig) IsConfigured() bool {
	return c != nil && c.APIKey != ""
}

type AsaasClient struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func NewAsaasClient(cfg *AsaasConfig) *AsaasClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultAsaasTimeout
	}
	return &AsaasClient{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.ResolvedBaseURL(),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// AsaasError is returned for any non-2xx gateway response.
type AsaasError struct {
	StatusCode int
	Method     string
	Path       string
	Errors     []AsaasErrorItem
	Body       string
}

type AsaasErrorItem struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *AsaasError) Error() string {
	descs := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		if item.Description != "" {
			descs = append(descs, item.Description)
		}
	}
	detail := strings.Join(descs, "; ")
	if detail == "" {
		detail = e.Body
	}
	return fmt.Sprintf("asaas %s %s failed: status=%d %s", e.Method, e.Path, e.StatusCode, detail)
}

func (e *AsaasError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrGatewayNotFound
	}
	return nil
}

func (c *AsaasClient) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if strings.TrimSpace(subscriptionID) == "" {
		return fmt.Errorf("subscription id is required")
	}
	return c.do(ctx, http.MethodDelete, "/subscriptions/"+url.PathEscape(subscriptionID), nil, nil, nil)
}

func (c *AsaasClient) GetPayment(ctx context.Context, paymentID string) (*AsaasPayment, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, fmt.Errorf("payment id is required")
	}
	var out AsaasPayment
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AsaasClient) GetCustomer(ctx context.Context, customerID string) (*AsaasCustomer, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, fmt.Errorf("customer id is required")
	}
	var out AsaasCustomer
	if err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(customerID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindCustomerByCpfCnpj returns the first matching customer or nil when none exists.
func (c *AsaasClient) FindCustomerByCpfCnpj(ctx context.Context, cpfCnpj string) (*AsaasCustomer, error) {
	q := url.Values{}
	q.Set("cpfCnpj", cpfCnpj)
	var out struct {
		TotalCount int             `json:"totalCount"`
		Data       []AsaasCustomer `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/customers", q, nil, &out); err != nil {
		return nil, err
	}
	for i := range out.Data {
		if !out.Data[i].Deleted {
			return &out.Data[i], nil
		}
	}
	return nil, nil
}

func (c *AsaasClient) CreateCustomer(ctx context.Context, in CustomerInput) (*AsaasCustomer, error) {
	var out AsaasCustomer
	if err := c.do(ctx, http.MethodPost, "/customers", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AsaasClient) CreatePayment(ctx context.Context, in ChargeInput) (*AsaasPayment, error) {
	var out AsaasPayment
	if err := c.do(ctx, http.MethodPost, "/payments", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AsaasClient) CreateSubscription(ctx context.Context, in SubscriptionInput) (*AsaasSubscription, error) {
	var out AsaasSubscription
	if err := c.do(ctx, http.MethodPost, "/subscriptions", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs a single attempt; the gateway is never retried from here.
func (c *AsaasClient) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrGatewayNotConfigured
	}

	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("access_token", c.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "nutrinea-billing")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		log.Warnf("[Asaas] %s %s transport error: %v", method, path, err)
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &AsaasError{StatusCode: resp.StatusCode, Method: method, Path: path, Body: string(raw)}
		var decoded struct {
			Errors []AsaasErrorItem `json:"errors"`
		}
		if json.Unmarshal(raw, &decoded) == nil {
			apiErr.Errors = decoded.Errors
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode asaas %s %s response: %w", method, path, err)
	}
	return nil
}
