package lnurlpay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
)

// PaymentStatus is the state of a recorded payment.
type PaymentStatus string

const (
	StatusInFlight  PaymentStatus = "in_flight"
	StatusSucceeded PaymentStatus = "succeeded"
	StatusFailed    PaymentStatus = "failed"
)

// PaymentRecord is the history entry of a payment made by a flow. The success
// action is stored with the payment so that it can be shown again later.
type PaymentRecord struct {
	FlowID         uuid.UUID
	Domain         string
	PaymentRequest string
	PaymentHash    lntypes.Hash
	AmountMsat     lnwire.MilliSatoshi
	FeeMsat        lnwire.MilliSatoshi
	Comment        string
	Status         PaymentStatus
	Preimage       *lntypes.Preimage
	SuccessAction  json.RawMessage
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Recorder keeps a history of payments.
type Recorder interface {
	// RecordAttempt stores a payment that is about to be sent.
	RecordAttempt(ctx context.Context, rec *PaymentRecord) error

	// RecordOutcome updates a stored payment with its final status.
	RecordOutcome(ctx context.Context, rec *PaymentRecord) error
}

// recordAttempt stores the payment about to be made. History is best effort:
// a failure to record is logged and does not stop the payment.
func (f *PayFlow) recordAttempt(ctx context.Context, offer *PayOffer,
	req *PaymentRequest, inv *Invoice) *PaymentRecord {

	if f.cfg.Recorder == nil {
		return nil
	}

	now := time.Now()
	rec := &PaymentRecord{
		FlowID:         f.id,
		Domain:         offer.Domain,
		PaymentRequest: inv.PaymentRequest,
		PaymentHash:    inv.PaymentHash,
		AmountMsat:     req.AmountMsat,
		Comment:        req.Comment,
		Status:         StatusInFlight,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := f.cfg.Recorder.RecordAttempt(ctx, rec); err != nil {
		log.Errorf("Flow %v: could not record payment: %v", f.id, err)
		return nil
	}

	return rec
}

// recordOutcome updates the stored payment. The payment backend has already
// answered, so the outcome is recorded even if the flow was torn down in the
// meantime.
func (f *PayFlow) recordOutcome(rec *PaymentRecord, payment *PaymentResult,
	action json.RawMessage, payErr error) {

	if rec == nil {
		return
	}

	rec.UpdatedAt = time.Now()
	if payErr != nil {
		rec.Status = StatusFailed
		rec.FailureReason = payErr.Error()
	} else {
		rec.Status = StatusSucceeded
		if payment.Preimage != (lntypes.Preimage{}) {
			preimage := payment.Preimage
			rec.Preimage = &preimage
		}
		rec.FeeMsat = payment.FeeMsat
		rec.SuccessAction = action
	}

	// The flow's context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := f.cfg.Recorder.RecordOutcome(ctx, rec); err != nil {
		log.Errorf("Flow %v: could not record payment outcome: %v",
			f.id, err)
	}
}

const recordTimeout = 10 * time.Second
