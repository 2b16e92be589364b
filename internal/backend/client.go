// Package backend is the REST client for the food-ordering API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/MwailaCoding/storefront/pkg/errors"
	"github.com/MwailaCoding/storefront/pkg/httpclient"
	"github.com/MwailaCoding/storefront/pkg/logger"
	"github.com/MwailaCoding/storefront/pkg/security"
	"golang.org/x/sync/singleflight"
)

const (
	ordersByPhonePath = "/api/orders/by-phone"
	ordersPath        = "/api/orders"
	healthPath        = "/api/health"

	defaultHealthTimeout = 5 * time.Second
)

// ErrNoOrders is returned when the backend has no orders for a phone.
var ErrNoOrders = pkgerrors.New(pkgerrors.CodeNotFound, "no orders found for this phone number")

// TokenSource supplies the optional bearer token attached to requests.
type TokenSource interface {
	Token(ctx context.Context) string
}

// AuthEditor attaches the bearer token from src when one is available.
func AuthEditor(src TokenSource) httpclient.RequestEditor {
	return func(ctx context.Context, req *http.Request) {
		if src == nil {
			return
		}
		if token := src.Token(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// ClientParams wires the backend client.
type ClientParams struct {
	HTTP          *httpclient.Client
	HealthTimeout time.Duration
	Logger        *logger.Logger
	Fingerprinter *security.PhoneFingerprinter
}

// Client talks to the ordering backend.
type Client struct {
	http          *httpclient.Client
	healthTimeout time.Duration
	logg          *logger.Logger
	fp            *security.PhoneFingerprinter
	lookups       singleflight.Group
}

func NewClient(params ClientParams) (*Client, error) {
	if params.HTTP == nil {
		return nil, errors.New("http client required")
	}
	timeout := params.HealthTimeout
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	fp := params.Fingerprinter
	if fp == nil {
		fp = security.NewPhoneFingerprinter("")
	}
	return &Client{http: params.HTTP, healthTimeout: timeout, logg: logg, fp: fp}, nil
}

// OrdersByPhone looks up a customer's orders. Concurrent lookups for the
// same phone share one request.
func (c *Client) OrdersByPhone(ctx context.Context, phone string) (*Lookup, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone is required")
	}
	ctx = c.logg.WithPhoneRef(ctx, c.fp.Fingerprint(phone))

	// the shared request outlives any single caller; each caller stops
	// waiting on its own cancellation
	shareCtx := context.WithoutCancel(ctx)
	ch := c.lookups.DoChan(security.NormalizePhone(phone), func() (any, error) {
		return c.ordersByPhone(shareCtx, phone)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.logg.Debug(ctx, "shared in-flight order lookup")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Lookup).clone(), nil
	}
}

func (c *Client) ordersByPhone(ctx context.Context, phone string) (*Lookup, error) {
	resp, err := c.http.Do(ctx, http.MethodGet, ordersByPhonePath, nil,
		httpclient.WithQuery(url.Values{"phone": {phone}}),
		httpclient.WithRoute("orders_by_phone"),
	)
	if err != nil {
		if httpclient.StatusCode(err) == http.StatusNotFound {
			return nil, ErrNoOrders
		}
		return nil, err
	}
	return decodeLookup(resp.Body)
}

// decodeLookup sniffs the body: an array is a summary list, an object is a
// single order detail.
func decodeLookup(body []byte) (*Lookup, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &Lookup{Summaries: []OrderSummary{}}, nil
	}
	switch trimmed[0] {
	case '[':
		var summaries []OrderSummary
		if err := json.Unmarshal(trimmed, &summaries); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding order summaries")
		}
		for i := range summaries {
			summaries[i].Status = normalizeStatus(summaries[i].Status)
		}
		if summaries == nil {
			summaries = []OrderSummary{}
		}
		return &Lookup{Summaries: summaries}, nil
	case '{':
		var detail OrderDetail
		if err := json.Unmarshal(trimmed, &detail); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding order detail")
		}
		detail.Status = normalizeStatus(detail.Status)
		return &Lookup{Detail: &detail}, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "unexpected order lookup response shape")
}

// CreateOptions controls order submission. Retries are only safe with an
// idempotency key the backend can deduplicate on.
type CreateOptions struct {
	IdempotencyKey string
	Retry          bool
}

// CreateOrder submits an order.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest, opts CreateOptions) (*CreateOrderResponse, error) {
	if len(req.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}
	reqOpts := []httpclient.RequestOption{
		httpclient.WithRoute("create_order"),
		httpclient.WithRetry(opts.Retry && opts.IdempotencyKey != ""),
	}
	if opts.IdempotencyKey != "" {
		reqOpts = append(reqOpts, httpclient.WithHeader("Idempotency-Key", opts.IdempotencyKey))
	}

	resp, err := c.http.Do(ctx, http.MethodPost, ordersPath, req, reqOpts...)
	if err != nil {
		return nil, err
	}
	var out CreateOrderResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, err
	}
	if out.OrderID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "backend did not return an order id")
	}
	c.logg.Info(c.logg.WithOrderID(ctx, out.OrderID), "order created")
	return &out, nil
}

// Health probes the backend, bounded by the health timeout.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.http.Do(ctx, http.MethodGet, healthPath, nil,
		httpclient.WithRoute("health"),
		httpclient.WithRetry(false),
		httpclient.WithTimeout(c.healthTimeout),
	)
	if err != nil {
		return fmt.Errorf("backend health: %w", err)
	}
	return nil
}
