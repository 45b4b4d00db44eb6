package lnurlpay

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/spf13/cast"
)

// PayResponse is the body the LN SERVICE returns when the wallet first
// queries a pay LNURL.
type PayResponse struct {
	// Callback is the URL from LN SERVICE which will accept the pay request
	// parameters
	Callback string `json:"callback"`

	// MaxSendable is the max amount LN SERVICE is willing to receive.
	// Services differ on whether they send it as a number or a string so
	// it is decoded leniently.
	MaxSendable interface{} `json:"maxSendable"`

	// MinSendable is the min amount LN SERVICE is willing to receive, can
	// not be less than 1 or more than `maxSendable`
	MinSendable interface{} `json:"minSendable"`

	// Metadata json which must be presented as raw string here, this is
	// required to pass signature verification at a later step.
	Metadata string `json:"metadata"`

	// CommentAllowed is the max length of the comment the service accepts.
	CommentAllowed interface{} `json:"commentAllowed,omitempty"`

	// Type of LNURL
	Tag Type `json:"tag"`

	Error
}

// InvoiceResponse is the body the LN SERVICE returns from its callback.
type InvoiceResponse struct {
	// PayRequest is a bech32-serialized lightning invoice.
	PayRequest string `json:"pr"`

	// SuccessAction is the optional action to execute once the invoice
	// has been paid.
	SuccessAction json.RawMessage `json:"successAction,omitempty"`

	// Routes an empty array.
	Routes []string `json:"routes"`

	Error
}

type Type string

const (
	TypePayRequest Type = "payRequest"
)

// StatusError is the status LN SERVICE uses to signal a failed request.
const StatusError = "ERROR"

// Error is the error body of the LNURL protocol. It is embedded in every
// response so that an error can be detected no matter which endpoint
// produced it.
type Error struct {
	Status string `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Err returns a ServiceError if the body carries the LNURL error status.
func (e Error) Err() error {
	if !strings.EqualFold(e.Status, StatusError) {
		return nil
	}

	return &ServiceError{Reason: e.Reason}
}

// PayOffer is a validated pay request. It is immutable once resolved.
type PayOffer struct {
	// MinSendable is the smallest amount the service accepts.
	MinSendable lnwire.MilliSatoshi

	// MaxSendable is the largest amount the service accepts.
	MaxSendable lnwire.MilliSatoshi

	// Callback is the url that issues invoices for this offer.
	Callback *url.URL

	// Domain is the host that served the offer, shown to the user.
	Domain string

	// Metadata is the raw metadata string exactly as it was received.
	Metadata string

	// CommentAllowed is the maximum comment length in characters. Zero
	// means comments are rejected.
	CommentAllowed int
}

// FixedAmount reports whether the offer only accepts a single amount.
func (o *PayOffer) FixedAmount() bool {
	return o.MinSendable == o.MaxSendable
}

// NewPayOffer validates a PayResponse received from domain and converts it
// into a PayOffer.
func NewPayOffer(resp *PayResponse, domain string) (*PayOffer, error) {
	if err := resp.Error.Err(); err != nil {
		return nil, err
	}

	if resp.Tag != TypePayRequest {
		return nil, fmt.Errorf("%w: got tag %q", ErrNotPayRequest,
			resp.Tag)
	}

	minSendable, err := msatField("minSendable", resp.MinSendable)
	if err != nil {
		return nil, err
	}

	maxSendable, err := msatField("maxSendable", resp.MaxSendable)
	if err != nil {
		return nil, err
	}

	if minSendable > maxSendable {
		return nil, fmt.Errorf("%w: minSendable %d exceeds "+
			"maxSendable %d", ErrMalformedOffer, minSendable,
			maxSendable)
	}

	var commentAllowed int64
	if resp.CommentAllowed != nil {
		commentAllowed, err = cast.ToInt64E(resp.CommentAllowed)
		if err != nil || commentAllowed < 0 {
			return nil, fmt.Errorf("%w: invalid commentAllowed "+
				"%v", ErrMalformedOffer, resp.CommentAllowed)
		}
	}

	if resp.Callback == "" {
		return nil, fmt.Errorf("%w: missing callback",
			ErrMalformedOffer)
	}

	callback, err := url.Parse(resp.Callback)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid callback: %v",
			ErrMalformedOffer, err)
	}
	if callback.Scheme != "http" && callback.Scheme != "https" {
		return nil, fmt.Errorf("%w: callback %q is not an http url",
			ErrMalformedOffer, resp.Callback)
	}

	if _, err := ParseMetadata(resp.Metadata); err != nil {
		return nil, err
	}

	return &PayOffer{
		MinSendable:    minSendable,
		MaxSendable:    maxSendable,
		Callback:       callback,
		Domain:         domain,
		Metadata:       resp.Metadata,
		CommentAllowed: int(commentAllowed),
	}, nil
}

func msatField(name string, v interface{}) (lnwire.MilliSatoshi, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedOffer, name)
	}

	amt, err := cast.ToInt64E(v)
	if err != nil {
		return 0, fmt.Errorf("%w: could not parse %s: %v",
			ErrMalformedOffer, name, err)
	}
	if amt < 0 {
		return 0, fmt.Errorf("%w: negative %s", ErrMalformedOffer,
			name)
	}

	return lnwire.MilliSatoshi(amt), nil
}

// PaymentRequest holds the values the user chose for a payment.
type PaymentRequest struct {
	// AmountMsat is the amount to pay. Zero selects the offer's default
	// amount when it has one.
	AmountMsat lnwire.MilliSatoshi

	// Comment is an optional comment for the LN SERVICE.
	Comment string
}

// Invoice holds the fields of a decoded bolt11 invoice that take part in
// verification.
type Invoice struct {
	// PaymentRequest is the encoded invoice.
	PaymentRequest string

	// PaymentHash is the hash the payment is locked to.
	PaymentHash lntypes.Hash

	// AmountMsat is the amount of the invoice, nil for amountless ones.
	AmountMsat *lnwire.MilliSatoshi

	// DescriptionHash is the committed description hash, if any.
	DescriptionHash *lntypes.Hash
}

// Origin identifies the site that requested the payment. It is opaque to
// this package and only passed on to the payment backend.
type Origin struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// PaymentResult is the outcome reported by a payment backend.
type PaymentResult struct {
	// Preimage is the payment preimage. It is zero if the backend did not
	// report one.
	Preimage lntypes.Preimage

	// FeeMsat is the routing fee paid, if known.
	FeeMsat lnwire.MilliSatoshi

	// PaymentError is set by backends that report failures in-band. A
	// non-empty value means the payment did not succeed.
	PaymentError string
}
