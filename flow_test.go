package lnurlpay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/stretchr/testify/require"
)

var (
	testPreimage = lntypes.Preimage{1, 2, 3}

	testOrigin = Origin{Name: "shop.test", Icon: "icon.png"}

	messageAction = `{"tag":"message","message":"Thanks!"}`
)

type flowHarness struct {
	flow      *PayFlow
	transport *mockTransport
	backend   *mockBackend
	recorder  *mockRecorder

	mu          sync.Mutex
	transitions []Transition
}

func newFlowHarness(offer *PayOffer, resp *InvoiceResponse) *flowHarness {
	h := &flowHarness{
		transport: &mockTransport{
			offer: offer,
			invoice: func(*PaymentRequest) *InvoiceResponse {
				return resp
			},
		},
		backend: &mockBackend{
			result: &PaymentResult{
				Preimage: testPreimage,
				FeeMsat:  3000,
			},
		},
		recorder: &mockRecorder{},
	}

	h.flow = NewPayFlow(&FlowConfig{
		Transport: h.transport,
		Decoder:   &Bolt11Decoder{Params: testParams},
		Backend:   h.backend,
		Origin:    testOrigin,
		Recorder:  h.recorder,
		OnTransition: func(tr Transition) {
			h.mu.Lock()
			h.transitions = append(h.transitions, tr)
			h.mu.Unlock()
		},
	})

	return h
}

// phases returns the phases the flow went through after the initial one.
func (h *flowHarness) phases() []Phase {
	h.mu.Lock()
	defer h.mu.Unlock()

	phases := make([]Phase, 0, len(h.transitions))
	for _, tr := range h.transitions {
		phases = append(phases, tr.To)
	}

	return phases
}

// invoiceResponse returns a callback response with a valid invoice for amt.
func invoiceResponse(t *testing.T, offer *PayOffer, amt lnwire.MilliSatoshi,
	action string) *InvoiceResponse {

	t.Helper()

	resp := &InvoiceResponse{
		PayRequest: makeInvoice(
			t, amt, hashPtr(CommitmentHash(offer.Metadata)),
		),
	}
	if action != "" {
		resp.SuccessAction = json.RawMessage(action)
	}

	return resp
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
	}
}

// TestPayFlow runs a flow from offer to displayed message and checks that
// nothing is fetched or paid after it closed.
func TestPayFlow(t *testing.T) {
	ctx := context.Background()
	offer := testOffer(t, 1000, 5000, 0)
	h := newFlowHarness(
		offer, invoiceResponse(t, offer, 2000, messageAction),
	)

	require.Equal(t, PhaseResolvingOffer, h.flow.Phase())
	require.NoError(t, h.flow.Resolve(ctx, "alice@service.test"))
	require.Equal(t, PhaseAwaitingUserInput, h.flow.Phase())
	require.Equal(t, offer, h.flow.Offer())

	minSendable, maxSendable := h.flow.Bounds()
	require.Equal(t, lnwire.MilliSatoshi(1000), minSendable)
	require.Equal(t, lnwire.MilliSatoshi(5000), maxSendable)
	require.Zero(t, h.flow.CommentAllowed())

	require.NoError(t, h.flow.Submit(ctx, PaymentRequest{AmountMsat: 2000}))

	require.Equal(t, PhaseClosed, h.flow.Phase())
	require.NoError(t, h.flow.Err())
	require.Equal(t, &MessageAction{Message: "Thanks!"}, h.flow.SuccessAction())
	require.Equal(t, testPreimage, h.flow.Payment().Preimage)
	require.Equal(
		t, lnwire.MilliSatoshi(2000), *h.flow.Invoice().AmountMsat,
	)

	require.Equal(t, []Phase{
		PhaseAwaitingUserInput,
		PhaseFetchingInvoice,
		PhaseVerifying,
		PhasePaying,
		PhaseInterpretingSuccessAction,
		PhaseClosed,
	}, h.phases())

	for _, tr := range h.transitions {
		require.Equal(t, h.flow.ID(), tr.FlowID)
	}

	require.Len(t, h.backend.payments(), 1)
	require.Equal(t, h.flow.Invoice().PaymentRequest, h.backend.payments()[0])
	require.Equal(t, testOrigin, h.backend.origins[0])

	// A closed flow makes no further calls.
	err := h.flow.Submit(ctx, PaymentRequest{AmountMsat: 2000})
	require.True(t, errors.Is(err, ErrWrongPhase))
	require.True(t, errors.Is(h.flow.Reject(), ErrWrongPhase))
	h.flow.Dispose()

	require.Equal(t, PhaseClosed, h.flow.Phase())
	resolves, fetches := h.transport.calls()
	require.Equal(t, 1, resolves)
	require.Equal(t, 1, fetches)
	require.Len(t, h.backend.payments(), 1)
}

func TestPayFlowFixedAmount(t *testing.T) {
	ctx := context.Background()
	offer := testOffer(t, 1000, 1000, 0)
	h := newFlowHarness(offer, invoiceResponse(t, offer, 1000, ""))

	require.NoError(t, h.flow.Resolve(ctx, "alice@service.test"))

	amt, ok := h.flow.DefaultAmount()
	require.True(t, ok)
	require.Equal(t, lnwire.MilliSatoshi(1000), amt)

	// Without an amount the fixed amount is used.
	require.NoError(t, h.flow.Submit(ctx, PaymentRequest{}))
	require.Equal(t, PhaseClosed, h.flow.Phase())
	require.Equal(t, lnwire.MilliSatoshi(1000), h.transport.lastReq.AmountMsat)
	require.Equal(t, lnwire.MilliSatoshi(1000), h.flow.Request().AmountMsat)
	require.Nil(t, h.flow.SuccessAction())
}

func TestPayFlowInvalidInput(t *testing.T) {
	ctx := context.Background()
	offer := testOffer(t, 1000, 5000, 0)
	h := newFlowHarness(offer, invoiceResponse(t, offer, 3000, ""))

	require.NoError(t, h.flow.Resolve(ctx, "alice@service.test"))

	_, ok := h.flow.DefaultAmount()
	require.False(t, ok)

	tests := []struct {
		req   PaymentRequest
		field string
	}{
		{req: PaymentRequest{}, field: "amount"},
		{req: PaymentRequest{AmountMsat: 500}, field: "amount"},
		{req: PaymentRequest{AmountMsat: 999}, field: "amount"},
		{req: PaymentRequest{AmountMsat: 5001}, field: "amount"},
		{
			req:   PaymentRequest{AmountMsat: 3000, Comment: "hi"},
			field: "comment",
		},
	}
	for _, test := range tests {
		err := h.flow.Submit(ctx, test.req)
		require.Equal(t, KindInvalidUserInput, ErrorKindOf(err))

		var inputErr *InputError
		require.True(t, errors.As(err, &inputErr))
		require.Equal(t, test.field, inputErr.Field)

		// The user may correct the input.
		require.Equal(t, PhaseAwaitingUserInput, h.flow.Phase())
		require.NoError(t, h.flow.Err())
	}

	_, fetches := h.transport.calls()
	require.Zero(t, fetches)

	require.NoError(t, h.flow.Submit(ctx, PaymentRequest{AmountMsat: 3000}))
	require.Equal(t, PhaseClosed, h.flow.Phase())
}

func TestPayFlowComment(t *testing.T) {
	ctx := context.Background()
	offer := testOffer(t, 1000, 5000, 5)
	h := newFlowHarness(offer, invoiceResponse(t, offer, 2000, ""))

	require.NoError(t, h.flow.Resolve(ctx, "alice@service.test"))
	require.Equal(t, 5, h.flow.CommentAllowed())

	// Length is counted in characters, not bytes.
	req, err := h.flow.ValidateRequest(PaymentRequest{
		AmountMsat: 2000, Comment: "héllo",
	})
	require.NoError(t, err)
	require.Equal(t, "héllo", req.Comment)

	_, err = h.flow.ValidateRequest(PaymentRequest{
		AmountMsat: 2000, Comment: "héllo!",
	})
	require.Equal(t, KindInvalidUserInput, ErrorKindOf(err))

	require.NoError(t, h.flow.Submit(ctx, PaymentRequest{
		AmountMsat: 2000, Comment: "héllo",
	}))
	require.Equal(t, "héllo", h.transport.lastReq.Comment)
}

func TestPayFlowSuccessActions(t *testing.T) {
	tests := []struct {
		name      string
		action    string
		phase     Phase
		kind      ErrorKind
		expected  SuccessAction
		errSubstr string
	}{
		{
			name:     "none",
			phase:    PhaseClosed,
			expected: nil,
		},
		{
			name:   "url",
			action: `{"tag":"url","description":"d","url":"https://s.t"}`,
			phase:  PhaseClosed,
			expected: &URLAction{
				Description: "d", URL: "https://s.t",
			},
		},
		{
			name: "aes",
			action: `{"tag":"aes","description":"d",` +
				`"ciphertext":"Yw==","iv":"aQ=="}`,
			phase: PhaseFailed,
			kind:  KindUnsupportedSuccessAction,
			expected: &AESAction{
				Description: "d", Ciphertext: "Yw==", IV: "aQ==",
			},
			errSubstr: "support success action: aes",
		},
		{
			name:   "unknown",
			action: `{"tag":"future"}`,
			phase:  PhaseFailed,
			kind:   KindUnsupportedSuccessAction,
			expected: &UnknownAction{
				ActionTag: "future",
				Raw:       json.RawMessage(`{"tag":"future"}`),
			},
			errSubstr: "support success action: future",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			ctx := context.Background()
			offer := testOffer(t, 1000, 5000, 0)
			h := newFlowHarness(
				offer, invoiceResponse(t, offer, 2000, test.action),
			)

			require.NoError(t, h.flow.Resolve(ctx, "a@service.test"))
			err := h.flow.Submit(ctx, PaymentRequest{AmountMsat: 2000})

			require.Equal(t, test.phase, h.flow.Phase())
			require.Equal(t, test.expected, h.flow.SuccessAction())

			// The invoice is paid no matter the action.
			require.Len(t, h.backend.payments(), 1)
			require.NotNil(t, h.flow.Payment())

			if test.kind == KindUnknown {
				require.NoError(t, err)
				return
			}

			require.Equal(t, test.kind, ErrorKindOf(err))
			require.Equal(t, err, h.flow.Err())
			require.Contains(t, err.Error(), test.errSubstr)

			var actionErr *UnsupportedActionError
			require.True(t, errors.As(err, &actionErr))
		})
	}
}

func TestPayFlowVerificationFailure(t *testing.T) {
	offer := testOffer(t, 1000, 5000, 0)
	goodHash := CommitmentHash(offer.Metadata)
	badHash := CommitmentHash(`[["text/plain","other"]]`)

	tests := []struct {
		name     string
		pr       string
		expected error
	}{
		{
			name:     "amount off by one",
			pr:       makeInvoice(t, 2001, &goodHash),
			expected: ErrAmountMismatch,
		},
		{
			name:     "amountless",
			pr:       makeInvoice(t, 0, &goodHash),
			expected: ErrAmountMismatch,
		},
		{
			name:     "other metadata",
			pr:       makeInvoice(t, 2000, &badHash),
			expected: ErrMetadataHashMismatch,
		},
		{
			name:     "no description hash",
			pr:       makeInvoice(t, 2000, nil),
			expected: ErrMetadataHashMismatch,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			ctx := context.Background()
			h := newFlowHarness(offer, &InvoiceResponse{
				PayRequest:    test.pr,
				SuccessAction: json.RawMessage(messageAction),
			})

			require.NoError(t, h.flow.Resolve(ctx, "a@service.test"))
			err := h.flow.Submit(ctx, PaymentRequest{AmountMsat: 2000})

			require.Equal(t, KindVerification, ErrorKindOf(err))
			require.True(t, errors.Is(err, test.expected))
			require.Equal(t, PhaseFailed, h.flow.Phase())

			// Nothing is paid and nothing is shown.
			require.Empty(t, h.backend.payments())
			require.Nil(t, h.flow.SuccessAction())
			require.Nil(t, h.flow.Payment())
			require.Empty(t, h.recorder.attempts)
		})
	}
}

func TestPayFlowCallbackFailure(t *testing.T) {
	offer := testOffer(t, 1000, 5000, 0)
	valid := makeInvoice(t, 2000, hashPtr(CommitmentHash(offer.Metadata)))

	tests := []struct {
		name     string
		resp     *InvoiceResponse
		fetchErr error
	}{
		{
			name:     "transport error",
			fetchErr: errors.New("connection refused"),
		},
		{
			name: "service error",
			resp: &InvoiceResponse{
				Error: Error{Status: "ERROR", Reason: "sold out"},
			},
		},
		{
			name: "no invoice",
			resp: &InvoiceResponse{},
		},
		{
			name: "undecodable invoice",
			resp: &InvoiceResponse{PayRequest: "lnbcrt1notaninvoice"},
		},
		{
			name: "invalid success action",
			resp: &InvoiceResponse{
				PayRequest:    valid,
				SuccessAction: json.RawMessage(`"message"`),
			},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			ctx := context.Background()
			h := newFlowHarness(offer, test.resp)
			h.transport.fetchErr = test.fetchErr

			require.NoError(t, h.flow.Resolve(ctx, "a@service.test"))
			err := h.flow.Submit(ctx, PaymentRequest{AmountMsat: 2000})

			require.Equal(t, KindCallback, ErrorKindOf(err))
			require.Equal(t, PhaseFailed, h.flow.Phase())
			require.Empty(t, h.backend.payments())
		})
	}
}

func TestPayFlowServiceErrorReason(t *testing.T) {
	ctx := context.Background()
	offer := testOffer(t, 1000, 5000, 0)
	h := newFlowHarness(offer, &InvoiceResponse{
		Error: Error{Status: "ERROR", Reason: "sold out"},
	})

	require.NoError(t, h.flow.Resolve(ctx, "a@service.test"))
	err := h.flow.Submit(ctx, PaymentRequest{AmountMsat: 2000})

	var serviceErr *ServiceError
	require.True(t, errors.As(err, &serviceErr))
	require.Equal(t, "sold out", serviceErr.Reason)
}

func TestPayFlowPaymentFailure(t *testing.T) {
	t.Run("backend error", func(t *testing.T) {
		ctx := context.Background()
		offer := testOffer(t, 1000, 5000, 0)
		h := newFlowHarness(offer, invoiceResponse(t, offer, 2000, ""))
		h.backend.result = nil
		h.backend.err = errors.New("no route")

		require.NoError(t, h.flow.Resolve(ctx, "a@service.test"))
		err := h.flow.Submit(ctx, PaymentRequest{AmountMsat: 2000})

		require.Equal(t, KindPayment, ErrorKindOf(err))
		require.Contains(t, err.Error(), "no route")
		require.Equal(t, PhaseFailed, h.flow.Phase())
		require.Nil(t, h.flow.Payment())

		require.Len(t, h.recorder.outcomes, 1)
		require.Equal(t, StatusFailed, h.recorder.outcomes[0].Status)
		require.Contains(t, h.recorder.outcomes[0].FailureReason, "no route")
	})

	t.Run("in-band error", func(t *testing.T) {
		ctx := context.Background()
		offer := testOffer(t, 1000, 5000, 0)
		h := newFlowHarness(
			offer, invoiceResponse(t, offer, 2000, messageAction),
		)
		h.backend.result = &PaymentResult{PaymentError: "insufficient balance"}

		require.NoError(t, h.flow.Resolve(ctx, "a@service.test"))
		err := h.flow.Submit(ctx, PaymentRequest{AmountMsat: 2000})

		require.Equal(t, KindPayment, ErrorKindOf(err))
		require.True(t, errors.Is(err, ErrPaymentFailed))
		require.Contains(t, err.Error(), "insufficient balance")
		require.Nil(t, h.flow.SuccessAction())
		require.Nil(t, h.flow.Payment())
	})

	t.Run("no result", func(t *testing.T) {
		ctx := context.Background()
		offer := testOffer(t, 1000, 5000, 0)
		h := newFlowHarness(offer, invoiceResponse(t, offer, 2000, ""))
		h.backend.result = nil

		require.NoError(t, h.flow.Resolve(ctx, "a@service.test"))
		err := h.flow.Submit(ctx, PaymentRequest{AmountMsat: 2000})

		require.Equal(t, KindPayment, ErrorKindOf(err))
		require.True(t, errors.Is(err, ErrPaymentFailed))
		require.Equal(t, PhaseFailed, h.flow.Phase())
	})
}

func TestPayFlowResolveFailure(t *testing.T) {
	ctx := context.Background()

	h := newFlowHarness(nil, nil)
	h.transport.resolveErr = errors.New("dns failure")

	err := h.flow.Resolve(ctx, "a@service.test")
	require.Equal(t, KindOfferResolution, ErrorKindOf(err))
	require.Equal(t, PhaseFailed, h.flow.Phase())

	// A failed flow can not be resolved again.
	err = h.flow.Resolve(ctx, "a@service.test")
	require.True(t, errors.Is(err, ErrWrongPhase))
}

func TestPayFlowUseOffer(t *testing.T) {
	h := newFlowHarness(nil, nil)

	offer := testOffer(t, 5000, 1000, 0)
	err := h.flow.UseOffer(offer)
	require.Equal(t, KindOfferResolution, ErrorKindOf(err))
	require.True(t, errors.Is(err, ErrMalformedOffer))

	h = newFlowHarness(nil, nil)
	offer = testOffer(t, 1000, 5000, 0)
	offer.Metadata = `[["text/plain"]]`
	err = h.flow.UseOffer(offer)
	require.True(t, errors.Is(err, ErrMalformedMetadata))

	h = newFlowHarness(nil, nil)
	require.NoError(t, h.flow.UseOffer(testOffer(t, 1000, 5000, 0)))
	require.Equal(t, PhaseAwaitingUserInput, h.flow.Phase())

	resolves, _ := h.transport.calls()
	require.Zero(t, resolves)
}

func TestPayFlowReject(t *testing.T) {
	t.Run("awaiting input", func(t *testing.T) {
		ctx := context.Background()
		offer := testOffer(t, 1000, 5000, 0)
		h := newFlowHarness(offer, invoiceResponse(t, offer, 2000, ""))

		require.NoError(t, h.flow.Resolve(ctx, "a@service.test"))
		require.NoError(t, h.flow.Reject())

		require.Equal(t, PhaseRejected, h.flow.Phase())
		require.NoError(t, h.flow.Err())

		err := h.flow.Submit(ctx, PaymentRequest{AmountMsat: 2000})
		require.True(t, errors.Is(err, ErrWrongPhase))

		// Disposing a rejected flow keeps it rejected.
		h.flow.Dispose()
		require.Equal(t, PhaseRejected, h.flow.Phase())

		_, fetches := h.transport.calls()
		require.Zero(t, fetches)
		require.Equal(t, []Phase{PhaseAwaitingUserInput, PhaseRejected},
			h.phases())
	})

	t.Run("resolving offer", func(t *testing.T) {
		ctx := context.Background()
		offer := testOffer(t, 1000, 5000, 0)
		h := newFlowHarness(offer, invoiceResponse(t, offer, 2000, ""))

		require.NoError(t, h.flow.Reject())
		require.Equal(t, PhaseRejected, h.flow.Phase())
		require.NoError(t, h.flow.Err())

		err := h.flow.Resolve(ctx, "a@service.test")
		require.True(t, errors.Is(err, ErrWrongPhase))
		require.True(t, errors.Is(h.flow.Reject(), ErrWrongPhase))

		resolves, _ := h.transport.calls()
		require.Zero(t, resolves)
		require.Nil(t, h.flow.Offer())
		require.Equal(t, []Phase{PhaseRejected}, h.phases())
	})

	t.Run("fetching invoice", func(t *testing.T) {
		ctx := context.Background()
		offer := testOffer(t, 1000, 5000, 0)
		h := newFlowHarness(offer, invoiceResponse(t, offer, 2000, ""))
		h.transport.release = make(chan struct{})
		h.transport.fetching = make(chan struct{})

		require.NoError(t, h.flow.Resolve(ctx, "a@service.test"))

		errChan := make(chan error, 1)
		go func() {
			errChan <- h.flow.Submit(
				ctx, PaymentRequest{AmountMsat: 2000},
			)
		}()

		waitFor(t, h.transport.fetching)

		// Once submitted, the request can no longer be rejected.
		require.True(t, errors.Is(h.flow.Reject(), ErrWrongPhase))
		require.Equal(t, PhaseFetchingInvoice, h.flow.Phase())

		close(h.transport.release)

		select {
		case err := <-errChan:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("submit did not return")
		}

		require.Equal(t, PhaseClosed, h.flow.Phase())
		require.Len(t, h.backend.payments(), 1)
	})
}

// TestPayFlowDisposeDuringFetch checks that a response arriving after the
// flow was torn down is discarded.
func TestPayFlowDisposeDuringFetch(t *testing.T) {
	ctx := context.Background()
	offer := testOffer(t, 1000, 5000, 0)
	h := newFlowHarness(offer, invoiceResponse(t, offer, 2000, ""))
	h.transport.release = make(chan struct{})
	h.transport.fetching = make(chan struct{})

	require.NoError(t, h.flow.Resolve(ctx, "a@service.test"))

	errChan := make(chan error, 1)
	go func() {
		errChan <- h.flow.Submit(ctx, PaymentRequest{AmountMsat: 2000})
	}()

	waitFor(t, h.transport.fetching)
	require.Equal(t, PhaseFetchingInvoice, h.flow.Phase())

	// Only one request is ever outstanding.
	err := h.flow.Submit(ctx, PaymentRequest{AmountMsat: 2000})
	require.True(t, errors.Is(err, ErrWrongPhase))

	h.flow.Dispose()
	require.Equal(t, PhaseFailed, h.flow.Phase())
	require.Equal(t, KindCancelled, ErrorKindOf(h.flow.Err()))

	close(h.transport.release)

	select {
	case err := <-errChan:
		require.Equal(t, KindCancelled, ErrorKindOf(err))
		require.True(t, errors.Is(err, ErrCancelled))
	case <-time.After(5 * time.Second):
		t.Fatal("submit did not return")
	}

	require.Equal(t, PhaseFailed, h.flow.Phase())
	require.Nil(t, h.flow.Response())
	require.Nil(t, h.flow.Invoice())
	require.Empty(t, h.backend.payments())
}

func TestPayFlowDisposeDuringPayment(t *testing.T) {
	ctx := context.Background()
	offer := testOffer(t, 1000, 5000, 0)
	h := newFlowHarness(
		offer, invoiceResponse(t, offer, 2000, messageAction),
	)
	h.backend.release = make(chan struct{})
	h.backend.paying = make(chan struct{})

	require.NoError(t, h.flow.Resolve(ctx, "a@service.test"))

	errChan := make(chan error, 1)
	go func() {
		errChan <- h.flow.Submit(ctx, PaymentRequest{AmountMsat: 2000})
	}()

	waitFor(t, h.backend.paying)
	h.flow.Dispose()
	close(h.backend.release)

	select {
	case err := <-errChan:
		require.Equal(t, KindCancelled, ErrorKindOf(err))
	case <-time.After(5 * time.Second):
		t.Fatal("submit did not return")
	}

	// The late payment result is not applied.
	require.Equal(t, PhaseFailed, h.flow.Phase())
	require.Nil(t, h.flow.Payment())
	require.Nil(t, h.flow.SuccessAction())
	require.NotContains(t, h.phases(), PhaseInterpretingSuccessAction)

	// The history still learns that the payment went through.
	h.recorder.mu.Lock()
	defer h.recorder.mu.Unlock()
	require.Len(t, h.recorder.outcomes, 1)
	require.Equal(t, StatusSucceeded, h.recorder.outcomes[0].Status)
}

func TestPayFlowRecorder(t *testing.T) {
	ctx := context.Background()
	offer := testOffer(t, 1000, 5000, 20)
	resp := invoiceResponse(t, offer, 2000, messageAction)
	h := newFlowHarness(offer, resp)

	require.NoError(t, h.flow.Resolve(ctx, "a@service.test"))
	require.NoError(t, h.flow.Submit(ctx, PaymentRequest{
		AmountMsat: 2000, Comment: "for the coffee",
	}))

	require.Len(t, h.recorder.attempts, 1)
	attempt := h.recorder.attempts[0]
	require.Equal(t, h.flow.ID(), attempt.FlowID)
	require.Equal(t, "service.test", attempt.Domain)
	require.Equal(t, resp.PayRequest, attempt.PaymentRequest)
	require.Equal(t, h.flow.Invoice().PaymentHash, attempt.PaymentHash)
	require.Equal(t, lnwire.MilliSatoshi(2000), attempt.AmountMsat)
	require.Equal(t, "for the coffee", attempt.Comment)
	require.Equal(t, StatusInFlight, attempt.Status)

	require.Len(t, h.recorder.outcomes, 1)
	outcome := h.recorder.outcomes[0]
	require.Equal(t, StatusSucceeded, outcome.Status)
	require.Equal(t, testPreimage, *outcome.Preimage)
	require.Equal(t, lnwire.MilliSatoshi(3000), outcome.FeeMsat)
	require.JSONEq(t, messageAction, string(outcome.SuccessAction))
}

func TestPhaseString(t *testing.T) {
	require.Equal(t, "AwaitingUserInput", PhaseAwaitingUserInput.String())
	require.Equal(t, "Phase(42)", Phase(42).String())
	require.True(t, PhaseRejected.IsTerminal())
	require.False(t, PhasePaying.IsTerminal())
	require.Equal(t, "CallbackError", KindCallback.String())
}
