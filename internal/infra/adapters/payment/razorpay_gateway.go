package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lms-billing/internal/domain"
	"lms-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*RazorpayGateway)(nil)

const defaultRazorpayBaseURL = "https://api.razorpay.com/v1"

// RazorpayGateway implements adapter.PaymentGateway against the Razorpay REST API
// using basic auth with the key id and secret.
type RazorpayGateway struct {
	keyID     string
	keySecret string
	baseURL   string
	client    *http.Client
}

func NewRazorpayGateway(keyID, keySecret, baseURL string, timeout time.Duration) (*RazorpayGateway, error) {
	if keyID == "" || keySecret == "" {
		return nil, errors.New("razorpay key id and secret are required")
	}
	if baseURL == "" {
		baseURL = defaultRazorpayBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RazorpayGateway{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: timeout},
	}, nil
}

func (g *RazorpayGateway) Name() string { return "razorpay" }

type rzpErrorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// errHTTPNotFound marks a 404 so fetch calls can report absence.
var errHTTPNotFound = errors.New("not found")

func (g *RazorpayGateway) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &domain.GatewayError{Op: op, Err: err}
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return &domain.GatewayError{Op: op, Err: err}
	}
	req.SetBasicAuth(g.keyID, g.keySecret)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return &domain.GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &domain.GatewayError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb rzpErrorBody
		_ = json.Unmarshal(raw, &eb)
		ge := &domain.GatewayError{Op: op, Description: eb.Error.Description}
		if resp.StatusCode == http.StatusNotFound {
			ge.Err = errHTTPNotFound
		} else {
			ge.Err = fmt.Errorf("http %d", resp.StatusCode)
		}
		return ge
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.GatewayError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (g *RazorpayGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (adapter.Order, error) {
	in := map[string]any{"amount": amountMinor, "currency": currency, "receipt": receipt}
	var out struct {
		ID       string `json:"id"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Receipt  string `json:"receipt"`
		Status   string `json:"status"`
	}
	if err := g.do(ctx, "create_order", http.MethodPost, "/orders", in, &out); err != nil {
		return adapter.Order{}, err
	}
	return adapter.Order{ID: out.ID, AmountMinor: out.Amount, Currency: out.Currency, Receipt: out.Receipt, Status: out.Status}, nil
}

type rzpPlan struct {
	ID       string `json:"id"`
	Period   string `json:"period"`
	Interval int    `json:"interval"`
	Item     struct {
		Name        string `json:"name"`
		Amount      int64  `json:"amount"`
		Currency    string `json:"currency"`
		Description string `json:"description,omitempty"`
	} `json:"item"`
}

func (p rzpPlan) toPlan() adapter.Plan {
	return adapter.Plan{
		ID:          p.ID,
		Period:      adapter.PlanPeriod(p.Period),
		Interval:    p.Interval,
		Name:        p.Item.Name,
		AmountMinor: p.Item.Amount,
		Currency:    p.Item.Currency,
	}
}

func (g *RazorpayGateway) CreatePlan(ctx context.Context, req adapter.PlanRequest) (adapter.Plan, error) {
	var in rzpPlan
	in.Period = string(req.Period)
	in.Interval = req.Interval
	in.Item.Name = req.Name
	in.Item.Amount = req.AmountMinor
	in.Item.Currency = req.Currency
	in.Item.Description = req.Description

	var out rzpPlan
	if err := g.do(ctx, "create_plan", http.MethodPost, "/plans", in, &out); err != nil {
		return adapter.Plan{}, err
	}
	return out.toPlan(), nil
}

func (g *RazorpayGateway) FetchPlan(ctx context.Context, id string) (*adapter.Plan, error) {
	var out rzpPlan
	err := g.do(ctx, "fetch_plan", http.MethodGet, "/plans/"+url.PathEscape(id), nil, &out)
	if errors.Is(err, errHTTPNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := out.toPlan()
	return &p, nil
}

func (g *RazorpayGateway) CreateRecurringSubscription(ctx context.Context, req adapter.RecurringRequest) (adapter.RecurringSubscription, error) {
	in := map[string]any{
		"plan_id":     req.PlanID,
		"total_count": req.TotalCount,
	}
	if req.CustomerNotify {
		in["customer_notify"] = 1
	} else {
		in["customer_notify"] = 0
	}
	if req.CustomerID != "" {
		in["customer_id"] = req.CustomerID
	}
	if len(req.Notes) > 0 {
		in["notes"] = req.Notes
	}
	var out struct {
		ID         string `json:"id"`
		PlanID     string `json:"plan_id"`
		Status     string `json:"status"`
		TotalCount int    `json:"total_count"`
		PaidCount  int    `json:"paid_count"`
		CurrentEnd *int64 `json:"current_end"`
		ShortURL   string `json:"short_url"`
	}
	if err := g.do(ctx, "create_subscription", http.MethodPost, "/subscriptions", in, &out); err != nil {
		return adapter.RecurringSubscription{}, err
	}
	rs := adapter.RecurringSubscription{
		ID:         out.ID,
		PlanID:     out.PlanID,
		Status:     out.Status,
		TotalCount: out.TotalCount,
		PaidCount:  out.PaidCount,
		ShortURL:   out.ShortURL,
	}
	if out.CurrentEnd != nil && *out.CurrentEnd > 0 {
		t := time.Unix(*out.CurrentEnd, 0).UTC()
		rs.CurrentPeriodEnd = &t
	}
	return rs, nil
}

func (g *RazorpayGateway) CancelRecurringSubscription(ctx context.Context, id string) error {
	in := map[string]any{"cancel_at_cycle_end": 0}
	return g.do(ctx, "cancel_subscription", http.MethodPost, "/subscriptions/"+url.PathEscape(id)+"/cancel", in, nil)
}

type rzpCustomer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (g *RazorpayGateway) CreateCustomer(ctx context.Context, name, email string) (adapter.Customer, error) {
	in := map[string]any{"name": name, "email": email, "fail_existing": "1"}
	var out rzpCustomer
	if err := g.do(ctx, "create_customer", http.MethodPost, "/customers", in, &out); err != nil {
		var ge *domain.GatewayError
		if errors.As(err, &ge) && strings.Contains(strings.ToLower(ge.Description), "already exists") {
			return adapter.Customer{}, adapter.ErrCustomerExists
		}
		return adapter.Customer{}, err
	}
	return adapter.Customer{ID: out.ID, Name: out.Name, Email: out.Email}, nil
}

// FindCustomerByEmail pages through the customer list; the API has no email filter.
func (g *RazorpayGateway) FindCustomerByEmail(ctx context.Context, email string) (*adapter.Customer, error) {
	const pageSize = 100
	for skip := 0; skip < 50*pageSize; skip += pageSize {
		var out struct {
			Count int           `json:"count"`
			Items []rzpCustomer `json:"items"`
		}
		path := fmt.Sprintf("/customers?count=%d&skip=%d", pageSize, skip)
		if err := g.do(ctx, "list_customers", http.MethodGet, path, nil, &out); err != nil {
			return nil, err
		}
		for _, c := range out.Items {
			if strings.EqualFold(c.Email, email) {
				return &adapter.Customer{ID: c.ID, Name: c.Name, Email: c.Email}, nil
			}
		}
		if len(out.Items) < pageSize {
			break
		}
	}
	return nil, nil
}
