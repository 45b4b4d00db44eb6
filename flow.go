package lnurlpay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/lnwire"
)

// ErrPaymentFailed is returned when the payment backend reports a failed
// payment in its response rather than as a call error.
var ErrPaymentFailed = errors.New("payment failed")

// Phase is the lifecycle phase of a PayFlow.
type Phase uint8

const (
	PhaseResolvingOffer Phase = iota
	PhaseAwaitingUserInput
	PhaseFetchingInvoice
	PhaseVerifying
	PhasePaying
	PhaseInterpretingSuccessAction
	PhaseClosed
	PhaseRejected
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseResolvingOffer:
		return "ResolvingOffer"
	case PhaseAwaitingUserInput:
		return "AwaitingUserInput"
	case PhaseFetchingInvoice:
		return "FetchingInvoice"
	case PhaseVerifying:
		return "Verifying"
	case PhasePaying:
		return "Paying"
	case PhaseInterpretingSuccessAction:
		return "InterpretingSuccessAction"
	case PhaseClosed:
		return "Closed"
	case PhaseRejected:
		return "Rejected"
	case PhaseFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

// IsTerminal reports whether no further transitions can leave p.
func (p Phase) IsTerminal() bool {
	return p == PhaseClosed || p == PhaseRejected || p == PhaseFailed
}

// Transition describes a phase change of a flow.
type Transition struct {
	FlowID uuid.UUID
	From   Phase
	To     Phase
}

// Transport is the network side of the LNURL-pay protocol.
type Transport interface {
	// ResolveOffer fetches and validates the pay offer behind lnurl.
	ResolveOffer(ctx context.Context, lnurl string) (*PayOffer, error)

	// FetchInvoice asks the offer's callback for an invoice.
	FetchInvoice(ctx context.Context, offer *PayOffer,
		req *PaymentRequest) (*InvoiceResponse, error)
}

// PaymentBackend pays invoices on behalf of the flow.
type PaymentBackend interface {
	PayInvoice(ctx context.Context, paymentRequest string,
		origin Origin) (*PaymentResult, error)
}

// FlowConfig holds the collaborators of a PayFlow.
type FlowConfig struct {
	// Transport talks to the LN SERVICE.
	Transport Transport

	// Decoder decodes the invoices returned by the LN SERVICE.
	Decoder InvoiceDecoder

	// Backend pays verified invoices.
	Backend PaymentBackend

	// Origin identifies the requesting site to the payment backend.
	Origin Origin

	// Recorder, if set, is used to keep a history of payments.
	Recorder Recorder

	// OnTransition, if set, is called after every phase change. It is
	// called without holding the flow's lock so it may query the flow.
	OnTransition func(Transition)
}

// PayFlow drives a single LNURL-pay interaction from offer to paid invoice.
// A PayFlow is never reused: once it reaches a terminal phase it should be
// dropped.
type PayFlow struct {
	id  uuid.UUID
	cfg *FlowConfig

	// quit is closed when the flow is torn down, cancelling any network
	// call in flight.
	quit     chan struct{}
	quitOnce sync.Once

	mu        sync.Mutex
	phase     Phase
	resolving bool
	offer     *PayOffer
	request   *PaymentRequest
	response  *InvoiceResponse
	invoice   *Invoice
	action    SuccessAction
	payment   *PaymentResult
	err       error
}

// NewPayFlow creates a flow in the ResolvingOffer phase.
func NewPayFlow(cfg *FlowConfig) *PayFlow {
	return &PayFlow{
		id:    uuid.New(),
		cfg:   cfg,
		quit:  make(chan struct{}),
		phase: PhaseResolvingOffer,
	}
}

// ID returns the unique id of the flow.
func (f *PayFlow) ID() uuid.UUID {
	return f.id
}

// Phase returns the current phase.
func (f *PayFlow) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.phase
}

// Err returns the error the flow failed with. It is nil unless the flow is
// in PhaseFailed.
func (f *PayFlow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.err
}

// Offer returns the resolved offer, nil before resolution.
func (f *PayFlow) Offer() *PayOffer {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.offer
}

// Request returns the accepted payment request, if any.
func (f *PayFlow) Request() *PaymentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.request
}

// Response returns the callback response, if any.
func (f *PayFlow) Response() *InvoiceResponse {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.response
}

// Invoice returns the decoded invoice, if any.
func (f *PayFlow) Invoice() *Invoice {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.invoice
}

// Payment returns the result reported by the payment backend once the
// invoice has been paid.
func (f *PayFlow) Payment() *PaymentResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.payment
}

// SuccessAction returns the success action to display. It is only set once
// the flow is closed with a supported action, or failed on an unsupported
// one.
func (f *PayFlow) SuccessAction() SuccessAction {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case f.phase == PhaseClosed:
		return f.action

	case f.phase == PhaseFailed &&
		ErrorKindOf(f.err) == KindUnsupportedSuccessAction:

		return f.action

	default:
		return nil
	}
}

// Resolve resolves lnurl into a pay offer through the transport and moves the
// flow to AwaitingUserInput.
func (f *PayFlow) Resolve(ctx context.Context, lnurl string) error {
	f.mu.Lock()
	if f.phase != PhaseResolvingOffer || f.resolving {
		phase := f.phase
		f.mu.Unlock()
		return fmt.Errorf("%w: resolve in %v", ErrWrongPhase, phase)
	}
	f.resolving = true
	f.mu.Unlock()

	ctx, cancel := f.flowContext(ctx)
	defer cancel()

	offer, err := f.cfg.Transport.ResolveOffer(ctx, lnurl)
	if err != nil {
		return f.fail(
			PhaseResolvingOffer,
			kindFor(ctx, KindOfferResolution), err,
		)
	}

	return f.UseOffer(offer)
}

// UseOffer moves a flow in ResolvingOffer to AwaitingUserInput with an offer
// that was resolved elsewhere.
func (f *PayFlow) UseOffer(offer *PayOffer) error {
	if err := validateOffer(offer); err != nil {
		return f.fail(PhaseResolvingOffer, KindOfferResolution, err)
	}

	return f.advance(PhaseResolvingOffer, PhaseAwaitingUserInput, func() {
		f.offer = offer
	})
}

// Bounds returns the amounts the offer accepts.
func (f *PayFlow) Bounds() (lnwire.MilliSatoshi, lnwire.MilliSatoshi) {
	offer := f.Offer()
	if offer == nil {
		return 0, 0
	}

	return offer.MinSendable, offer.MaxSendable
}

// CommentAllowed returns the maximum comment length. Zero means comments are
// not accepted.
func (f *PayFlow) CommentAllowed() int {
	offer := f.Offer()
	if offer == nil {
		return 0
	}

	return offer.CommentAllowed
}

// DefaultAmount returns the amount to use when the user does not choose one.
// Only fixed amount offers have a default.
func (f *PayFlow) DefaultAmount() (lnwire.MilliSatoshi, bool) {
	offer := f.Offer()
	if offer == nil || !offer.FixedAmount() {
		return 0, false
	}

	return offer.MinSendable, true
}

// ValidateRequest checks req against the offer without advancing the flow and
// returns the request that would be submitted.
func (f *PayFlow) ValidateRequest(req PaymentRequest) (PaymentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.phase != PhaseAwaitingUserInput {
		return req, fmt.Errorf("%w: validate in %v", ErrWrongPhase,
			f.phase)
	}

	req, err := validateRequest(f.offer, req)
	if err != nil {
		return req, newFlowError(KindInvalidUserInput, err)
	}

	return req, nil
}

// Submit runs the flow to completion with the user's choices: it fetches the
// invoice, verifies it, pays it and interprets the success action.
//
// An invalid request fails with a KindInvalidUserInput error and leaves the
// flow in AwaitingUserInput so the user can correct it. Any other error is
// terminal and is also available from Err.
func (f *PayFlow) Submit(ctx context.Context, req PaymentRequest) error {
	f.mu.Lock()
	if f.phase != PhaseAwaitingUserInput {
		phase := f.phase
		f.mu.Unlock()
		return fmt.Errorf("%w: submit in %v", ErrWrongPhase, phase)
	}

	req, err := validateRequest(f.offer, req)
	if err != nil {
		f.mu.Unlock()
		log.Debugf("Flow %v: invalid input: %v", f.id, err)
		return newFlowError(KindInvalidUserInput, err)
	}

	offer := f.offer
	f.request = &req
	f.phase = PhaseFetchingInvoice
	f.mu.Unlock()
	f.notify(PhaseAwaitingUserInput, PhaseFetchingInvoice)

	ctx, cancel := f.flowContext(ctx)
	defer cancel()

	resp, inv, action, err := f.fetchInvoice(ctx, offer, &req)
	if err != nil {
		return f.fail(
			PhaseFetchingInvoice, kindFor(ctx, KindCallback), err,
		)
	}

	err = f.advance(PhaseFetchingInvoice, PhaseVerifying, func() {
		f.response = resp
		f.invoice = inv
		f.action = action
	})
	if err != nil {
		return err
	}

	if err := VerifyInvoice(inv, offer, req.AmountMsat); err != nil {
		log.Warnf("Flow %v: rejecting invoice from %v: %v", f.id,
			offer.Domain, err)
		return f.fail(PhaseVerifying, KindVerification, err)
	}

	if err := f.advance(PhaseVerifying, PhasePaying, nil); err != nil {
		return err
	}

	record := f.recordAttempt(ctx, offer, &req, inv)

	payment, err := f.cfg.Backend.PayInvoice(
		ctx, resp.PayRequest, f.cfg.Origin,
	)
	switch {
	case err != nil:

	case payment == nil:
		err = fmt.Errorf("%w: no result from backend",
			ErrPaymentFailed)

	case payment.PaymentError != "":
		err = fmt.Errorf("%w: %s", ErrPaymentFailed,
			payment.PaymentError)
	}
	f.recordOutcome(record, payment, resp.SuccessAction, err)
	if err != nil {
		return f.fail(PhasePaying, kindFor(ctx, KindPayment), err)
	}

	err = f.advance(PhasePaying, PhaseInterpretingSuccessAction, func() {
		f.payment = payment
	})
	if err != nil {
		return err
	}

	switch {
	case action == nil:
		log.Debugf("Flow %v: paid, no success action", f.id)

	case supportedAction(action):
		log.Debugf("Flow %v: paid, %v success action", f.id,
			action.Tag())

	default:
		return f.fail(
			PhaseInterpretingSuccessAction,
			KindUnsupportedSuccessAction,
			&UnsupportedActionError{Tag: action.Tag()},
		)
	}

	return f.advance(PhaseInterpretingSuccessAction, PhaseClosed, nil)
}

// fetchInvoice requests an invoice from the callback and decodes everything
// the response carries.
func (f *PayFlow) fetchInvoice(ctx context.Context, offer *PayOffer,
	req *PaymentRequest) (*InvoiceResponse, *Invoice, SuccessAction,
	error) {

	resp, err := f.cfg.Transport.FetchInvoice(ctx, offer, req)
	if err != nil {
		return nil, nil, nil, err
	}

	if err := resp.Error.Err(); err != nil {
		return nil, nil, nil, err
	}

	if resp.PayRequest == "" {
		return nil, nil, nil, fmt.Errorf("callback response has " +
			"no invoice")
	}

	action, err := ParseSuccessAction(resp.SuccessAction)
	if err != nil {
		return nil, nil, nil, err
	}

	inv, err := f.cfg.Decoder.Decode(resp.PayRequest)
	if err != nil {
		return nil, nil, nil, err
	}

	return resp, inv, action, nil
}

// Reject ends the flow on the user's request. It is only allowed before the
// user's choices were submitted.
func (f *PayFlow) Reject() error {
	f.mu.Lock()
	from := f.phase
	if from != PhaseResolvingOffer && from != PhaseAwaitingUserInput {
		f.mu.Unlock()
		return fmt.Errorf("%w: reject in %v", ErrWrongPhase, from)
	}
	f.phase = PhaseRejected
	f.mu.Unlock()

	f.stop()
	f.notify(from, PhaseRejected)

	return nil
}

// Dispose tears the flow down. Network calls in flight are cancelled and
// their results discarded. A flow that has not reached a terminal phase fails
// with a KindCancelled error. Dispose is safe to call more than once and from
// any goroutine.
func (f *PayFlow) Dispose() {
	f.stop()

	f.mu.Lock()
	from := f.phase
	if from.IsTerminal() {
		f.mu.Unlock()
		return
	}
	f.phase = PhaseFailed
	f.err = newFlowError(KindCancelled, ErrCancelled)
	f.mu.Unlock()

	f.notify(from, PhaseFailed)
}

func (f *PayFlow) stop() {
	f.quitOnce.Do(func() {
		close(f.quit)
	})
}

// flowContext derives a context that is also cancelled when the flow is torn
// down.
func (f *PayFlow) flowContext(ctx context.Context) (context.Context,
	context.CancelFunc) {

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-f.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// advance moves the flow from one phase to the next, applying update under
// the flow's lock. If the flow left from in the meantime, typically because
// it was disposed, nothing is applied and the flow's outcome is returned.
func (f *PayFlow) advance(from, to Phase, update func()) error {
	f.mu.Lock()
	if f.phase != from {
		err := f.outcomeLocked()
		f.mu.Unlock()
		return err
	}
	if update != nil {
		update()
	}
	f.phase = to
	f.mu.Unlock()

	f.notify(from, to)

	return nil
}

// fail moves the flow from the given phase to PhaseFailed.
func (f *PayFlow) fail(from Phase, kind ErrorKind, err error) error {
	f.mu.Lock()
	if f.phase != from {
		err := f.outcomeLocked()
		f.mu.Unlock()
		return err
	}
	f.phase = PhaseFailed
	f.err = newFlowError(kind, err)
	flowErr := f.err
	f.mu.Unlock()

	log.Debugf("Flow %v: failed in %v: %v", f.id, from, flowErr)
	f.notify(from, PhaseFailed)

	return flowErr
}

// outcomeLocked returns the error to report to a caller whose step was
// overtaken by another transition. The caller must hold the lock.
func (f *PayFlow) outcomeLocked() error {
	if f.err != nil {
		return f.err
	}

	return newFlowError(KindCancelled, ErrCancelled)
}

func (f *PayFlow) notify(from, to Phase) {
	log.Debugf("Flow %v: %v -> %v", f.id, from, to)

	if f.cfg.OnTransition != nil {
		f.cfg.OnTransition(Transition{
			FlowID: f.id,
			From:   from,
			To:     to,
		})
	}
}

// kindFor returns KindCancelled if ctx is done, since the error was then
// caused by the cancellation rather than by the remote side.
func kindFor(ctx context.Context, kind ErrorKind) ErrorKind {
	if ctx.Err() != nil {
		return KindCancelled
	}

	return kind
}

func validateOffer(offer *PayOffer) error {
	switch {
	case offer == nil:
		return fmt.Errorf("%w: no offer", ErrMalformedOffer)

	case offer.MinSendable > offer.MaxSendable:
		return fmt.Errorf("%w: minSendable %d exceeds maxSendable %d",
			ErrMalformedOffer, offer.MinSendable,
			offer.MaxSendable)

	case offer.Callback == nil:
		return fmt.Errorf("%w: missing callback", ErrMalformedOffer)

	case offer.CommentAllowed < 0:
		return fmt.Errorf("%w: negative commentAllowed",
			ErrMalformedOffer)
	}

	_, err := ParseMetadata(offer.Metadata)

	return err
}

func validateRequest(offer *PayOffer, req PaymentRequest) (PaymentRequest,
	error) {

	if req.AmountMsat == 0 {
		if !offer.FixedAmount() {
			return req, &InputError{
				Field: "amount",
				Reason: fmt.Sprintf("an amount between %d and "+
					"%d msat is required",
					offer.MinSendable, offer.MaxSendable),
			}
		}
		req.AmountMsat = offer.MinSendable
	}

	if req.AmountMsat < offer.MinSendable ||
		req.AmountMsat > offer.MaxSendable {

		return req, &InputError{
			Field: "amount",
			Reason: fmt.Sprintf("expected an amount between %d "+
				"and %d msat, got %d", offer.MinSendable,
				offer.MaxSendable, req.AmountMsat),
		}
	}

	if req.Comment == "" {
		return req, nil
	}

	if offer.CommentAllowed == 0 {
		return req, &InputError{
			Field:  "comment",
			Reason: "the service does not accept comments",
		}
	}

	if n := utf8.RuneCountInString(req.Comment); n > offer.CommentAllowed {
		return req, &InputError{
			Field: "comment",
			Reason: fmt.Sprintf("%d characters exceeds the "+
				"allowed %d", n, offer.CommentAllowed),
		}
	}

	return req, nil
}
