package lnurlpay

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotPayRequest is returned when an LNURL resolves to something
	// other than a pay request.
	ErrNotPayRequest = errors.New("lnurl is not a pay request")

	// ErrMalformedOffer is returned when a pay request does not describe
	// a usable offer.
	ErrMalformedOffer = errors.New("malformed pay request")

	// ErrMalformedMetadata is returned when the metadata of an offer is
	// not a json array of [type, content] pairs.
	ErrMalformedMetadata = errors.New("malformed metadata")

	// ErrAmountMismatch is returned when an invoice is not for the amount
	// that was requested.
	ErrAmountMismatch = errors.New("invoice amount does not match " +
		"requested amount")

	// ErrMetadataHashMismatch is returned when an invoice's description
	// hash does not commit to the offer metadata.
	ErrMetadataHashMismatch = errors.New("invalid invoice description hash")

	// ErrCancelled is returned when a flow is torn down before it
	// finished.
	ErrCancelled = errors.New("payment flow cancelled")

	// ErrWrongPhase is returned when an operation is not allowed in the
	// flow's current phase.
	ErrWrongPhase = errors.New("operation not allowed in current phase")
)

// ErrorKind classifies the errors a payment flow can end with.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindOfferResolution
	KindInvalidUserInput
	KindCallback
	KindVerification
	KindPayment
	KindUnsupportedSuccessAction
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindOfferResolution:
		return "OfferResolutionError"
	case KindInvalidUserInput:
		return "InvalidUserInput"
	case KindCallback:
		return "CallbackError"
	case KindVerification:
		return "VerificationError"
	case KindPayment:
		return "PaymentError"
	case KindUnsupportedSuccessAction:
		return "UnsupportedSuccessAction"
	case KindCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// FlowError is an error produced by a payment flow, tagged with its kind so
// that callers can tell user cancellation, technical failures and invalid
// invoices apart.
type FlowError struct {
	Kind ErrorKind
	Err  error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// ErrorKindOf returns the kind of a flow error, or KindUnknown if err is not
// one.
func ErrorKindOf(err error) ErrorKind {
	var flowErr *FlowError
	if errors.As(err, &flowErr) {
		return flowErr.Kind
	}

	return KindUnknown
}

func newFlowError(kind ErrorKind, err error) *FlowError {
	return &FlowError{Kind: kind, Err: err}
}

// InputError describes a user supplied value that the offer does not accept.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ServiceError is an error reported by the LN SERVICE itself.
type ServiceError struct {
	Reason string
}

func (e *ServiceError) Error() string {
	if e.Reason == "" {
		return "LN SERVICE returned an error"
	}

	return fmt.Sprintf("LN SERVICE error: %s", e.Reason)
}

// VerificationError lists every check an invoice failed.
type VerificationError struct {
	Mismatches []error
}

func (e *VerificationError) Error() string {
	msgs := make([]string, 0, len(e.Mismatches))
	for _, m := range e.Mismatches {
		msgs = append(msgs, m.Error())
	}

	return "Payment aborted. Invalid invoice: " + strings.Join(msgs, ", ")
}

// Is reports whether target is one of the mismatches.
func (e *VerificationError) Is(target error) bool {
	for _, m := range e.Mismatches {
		if errors.Is(m, target) {
			return true
		}
	}

	return false
}

// UnsupportedActionError is returned for success actions this package does
// not know how to execute.
type UnsupportedActionError struct {
	Tag string
}

func (e *UnsupportedActionError) Error() string {
	return fmt.Sprintf("Not implemented yet. Please submit an issue to "+
		"support success action: %s", e.Tag)
}
