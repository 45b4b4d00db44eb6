package lnurlpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// DefaultTimeout is the request timeout used when none is configured.
	DefaultTimeout = 30 * time.Second

	// maxBodySize caps how much of a response body is read.
	maxBodySize = 1 << 20
)

// TransportConfig configures an HTTPTransport.
type TransportConfig struct {
	// Client is the http client to use. A client with Timeout is created
	// if nil.
	Client *http.Client

	// Timeout applies to every request when Client is nil.
	Timeout time.Duration

	// AllowInsecure permits plain http endpoints.
	AllowInsecure bool
}

// HTTPTransport implements Transport over http.
type HTTPTransport struct {
	client        *http.Client
	allowInsecure bool
}

// A compile time check to ensure HTTPTransport implements Transport.
var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a new http transport.
func NewHTTPTransport(cfg *TransportConfig) *HTTPTransport {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &HTTPTransport{
		client:        client,
		allowInsecure: cfg.AllowInsecure,
	}
}

// ResolveOffer decodes lnurl, fetches the pay request it points to and
// validates it.
func (t *HTTPTransport) ResolveOffer(ctx context.Context,
	lnurl string) (*PayOffer, error) {

	endpoint, err := ResolveEndpoint(lnurl, t.allowInsecure)
	if err != nil {
		return nil, err
	}

	var payResp PayResponse
	if err := t.get(ctx, endpoint, &payResp); err != nil {
		return nil, err
	}

	offer, err := NewPayOffer(&payResp, endpoint.Hostname())
	if err != nil {
		return nil, err
	}

	if err := checkScheme(offer.Callback, t.allowInsecure); err != nil {
		return nil, fmt.Errorf("callback: %w", err)
	}

	log.Debugf("Resolved offer from %v: %v - %v, comments up to %d",
		offer.Domain, offer.MinSendable, offer.MaxSendable,
		offer.CommentAllowed)

	return offer, nil
}

// FetchInvoice requests an invoice for req from the offer's callback.
func (t *HTTPTransport) FetchInvoice(ctx context.Context, offer *PayOffer,
	req *PaymentRequest) (*InvoiceResponse, error) {

	callback := CallbackURL(offer, req)

	var invoice InvoiceResponse
	if err := t.get(ctx, callback, &invoice); err != nil {
		return nil, err
	}

	if err := invoice.Error.Err(); err != nil {
		return nil, err
	}

	return &invoice, nil
}

// CallbackURL builds the url that requests an invoice for req. Query
// parameters already present in the callback are kept. The comment is only
// sent when it is non-empty and the offer accepts comments.
func CallbackURL(offer *PayOffer, req *PaymentRequest) *url.URL {
	u := *offer.Callback

	query := u.Query()
	query.Set("amount", strconv.FormatUint(uint64(req.AmountMsat), 10))
	if req.Comment != "" && offer.CommentAllowed > 0 {
		query.Set("comment", req.Comment)
	}
	u.RawQuery = query.Encode()

	return &u
}

// get issues a GET request and decodes the json response into out. An LNURL
// error body is decoded even for non-2xx responses so that the service's
// reason is not lost.
func (t *HTTPTransport) get(ctx context.Context, u *url.URL,
	out interface{}) error {

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, u.String(), nil,
	)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET request error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("could not read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var lnErr Error
		if json.Unmarshal(body, &lnErr) == nil && lnErr.Err() != nil {
			return lnErr.Err()
		}

		return fmt.Errorf("GET %v: unexpected status %d", u.Host,
			resp.StatusCode)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}

	return nil
}
