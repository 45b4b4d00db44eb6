package lnurlpay

import (
	"context"
	"crypto/rand"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
	"github.com/stretchr/testify/require"
)

var testParams = &chaincfg.RegressionNetParams

const testMetadata = `[["text/plain","lndurl test"],["text/identifier","a@b.c"]]`

// makeInvoice returns a signed bolt11 invoice. A zero amount creates an
// amountless invoice and a nil descHash an invoice with a plain description.
func makeInvoice(t *testing.T, amt lnwire.MilliSatoshi,
	descHash *lntypes.Hash) string {

	t.Helper()

	var preimage lntypes.Preimage
	_, err := rand.Read(preimage[:])
	require.NoError(t, err)

	opts := []func(*zpay32.Invoice){}
	if amt != 0 {
		opts = append(opts, zpay32.Amount(amt))
	}
	if descHash != nil {
		opts = append(opts, zpay32.DescriptionHash(*descHash))
	} else {
		opts = append(opts, zpay32.Description("no hash"))
	}

	inv, err := zpay32.NewInvoice(
		testParams, preimage.Hash(), time.Now(), opts...,
	)
	require.NoError(t, err)

	privKey, err := btcec.NewPrivateKey(btcec.S256())
	require.NoError(t, err)

	pr, err := inv.Encode(zpay32.MessageSigner{
		SignCompact: func(msg []byte) ([]byte, error) {
			hash := chainhash.HashB(msg)
			return btcec.SignCompact(
				btcec.S256(), privKey, hash, true,
			)
		},
	})
	require.NoError(t, err)

	return pr
}

func hashPtr(h lntypes.Hash) *lntypes.Hash {
	return &h
}

func msatPtr(m lnwire.MilliSatoshi) *lnwire.MilliSatoshi {
	return &m
}

func testOffer(t *testing.T, minSendable, maxSendable lnwire.MilliSatoshi,
	commentAllowed int) *PayOffer {

	t.Helper()

	callback, err := url.Parse("https://service.test/invoice?id=1")
	require.NoError(t, err)

	return &PayOffer{
		MinSendable:    minSendable,
		MaxSendable:    maxSendable,
		Callback:       callback,
		Domain:         "service.test",
		Metadata:       testMetadata,
		CommentAllowed: commentAllowed,
	}
}

// mockTransport serves a fixed offer and hands out invoices built by
// invoice. If release is set, FetchInvoice waits for it before answering and
// ignores cancellation so that a late response can be observed.
type mockTransport struct {
	mu sync.Mutex

	offer      *PayOffer
	resolveErr error

	invoice  func(req *PaymentRequest) *InvoiceResponse
	fetchErr error
	release  chan struct{}
	fetching chan struct{}

	resolveCalls int
	fetchCalls   int
	lastReq      *PaymentRequest
}

func (m *mockTransport) ResolveOffer(ctx context.Context,
	lnurl string) (*PayOffer, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.resolveCalls++

	return m.offer, m.resolveErr
}

func (m *mockTransport) FetchInvoice(ctx context.Context, offer *PayOffer,
	req *PaymentRequest) (*InvoiceResponse, error) {

	m.mu.Lock()
	m.fetchCalls++
	r := *req
	m.lastReq = &r
	m.mu.Unlock()

	if m.release != nil {
		close(m.fetching)
		<-m.release
	}

	if m.fetchErr != nil {
		return nil, m.fetchErr
	}

	return m.invoice(req), nil
}

func (m *mockTransport) calls() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.resolveCalls, m.fetchCalls
}

// mockBackend records the invoices it is asked to pay.
type mockBackend struct {
	mu sync.Mutex

	result *PaymentResult
	err    error

	release chan struct{}
	paying  chan struct{}

	paid    []string
	origins []Origin
}

func (m *mockBackend) PayInvoice(ctx context.Context, paymentRequest string,
	origin Origin) (*PaymentResult, error) {

	m.mu.Lock()
	m.paid = append(m.paid, paymentRequest)
	m.origins = append(m.origins, origin)
	m.mu.Unlock()

	if m.release != nil {
		close(m.paying)
		<-m.release
	}

	return m.result, m.err
}

func (m *mockBackend) payments() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.paid...)
}

// mockRecorder keeps payment records in memory.
type mockRecorder struct {
	mu       sync.Mutex
	attempts []PaymentRecord
	outcomes []PaymentRecord
}

func (m *mockRecorder) RecordAttempt(_ context.Context,
	rec *PaymentRecord) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts = append(m.attempts, *rec)

	return nil
}

func (m *mockRecorder) RecordOutcome(_ context.Context,
	rec *PaymentRecord) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.outcomes = append(m.outcomes, *rec)

	return nil
}
