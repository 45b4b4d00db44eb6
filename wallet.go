package lnurlpay

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcutil"
	"github.com/lightninglabs/lndclient"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
)

// LndPayer pays invoices through an lnd node.
type LndPayer struct {
	client lndclient.LightningClient
	maxFee btcutil.Amount
}

// A compile time check to ensure LndPayer implements PaymentBackend.
var _ PaymentBackend = (*LndPayer)(nil)

// NewLndPayer creates a payer that pays through client with at most maxFee
// in routing fees.
func NewLndPayer(client lndclient.LightningClient,
	maxFee btcutil.Amount) *LndPayer {

	return &LndPayer{
		client: client,
		maxFee: maxFee,
	}
}

// PayInvoice pays the invoice and waits for the final result. The origin is
// only logged, lnd has no use for it.
func (l *LndPayer) PayInvoice(ctx context.Context, paymentRequest string,
	origin Origin) (*PaymentResult, error) {

	log.Infof("Paying invoice requested by %q", origin.Name)

	select {
	case res := <-l.client.PayInvoice(ctx, paymentRequest, l.maxFee, nil):
		if res.Err != nil {
			return nil, fmt.Errorf("could not pay invoice: %w",
				res.Err)
		}

		return &PaymentResult{
			Preimage: res.Preimage,
			FeeMsat:  lnwire.NewMSatFromSatoshis(res.PaidFee),
		}, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// MethodPayInvoice is the wallet RPC method CallPayer invokes.
const MethodPayInvoice = "lnurlPay"

// Caller is a generic wallet RPC. The origin identifies the site on whose
// behalf the call is made.
type Caller interface {
	Call(ctx context.Context, method string, params interface{},
		origin Origin) (json.RawMessage, error)
}

// CallerFunc adapts a function to the Caller interface.
type CallerFunc func(ctx context.Context, method string, params interface{},
	origin Origin) (json.RawMessage, error)

// Call calls f.
func (f CallerFunc) Call(ctx context.Context, method string,
	params interface{}, origin Origin) (json.RawMessage, error) {

	return f(ctx, method, params, origin)
}

// CallPayer pays invoices through a wallet RPC.
type CallPayer struct {
	caller Caller
}

// A compile time check to ensure CallPayer implements PaymentBackend.
var _ PaymentBackend = (*CallPayer)(nil)

// NewCallPayer creates a payer on top of caller.
func NewCallPayer(caller Caller) *CallPayer {
	return &CallPayer{caller: caller}
}

type payParams struct {
	PaymentRequest string `json:"paymentRequest"`
}

type payReply struct {
	PaymentError    string `json:"payment_error"`
	PaymentPreimage string `json:"payment_preimage"`
	Preimage        string `json:"preimage"`
}

// PayInvoice asks the wallet to pay the invoice. Only a non-empty
// payment_error marks the payment as failed. The preimage is optional, and
// one the wallet returns in an unexpected form is logged and dropped rather
// than failing a payment that was already sent.
func (c *CallPayer) PayInvoice(ctx context.Context, paymentRequest string,
	origin Origin) (*PaymentResult, error) {

	raw, err := c.caller.Call(ctx, MethodPayInvoice, &payParams{
		PaymentRequest: paymentRequest,
	}, origin)
	if err != nil {
		return nil, err
	}

	var reply payReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("could not decode %s reply: %w",
			MethodPayInvoice, err)
	}

	result := &PaymentResult{PaymentError: reply.PaymentError}
	if result.PaymentError != "" {
		return result, nil
	}

	encoded := reply.PaymentPreimage
	if encoded == "" {
		encoded = reply.Preimage
	}
	if encoded == "" {
		log.Debugf("Wallet reply for %s has no preimage",
			MethodPayInvoice)
		return result, nil
	}

	preimage, err := decodePreimage(encoded)
	if err != nil {
		log.Warnf("Ignoring preimage returned by wallet: %v", err)
		return result, nil
	}
	result.Preimage = preimage

	return result, nil
}

func decodePreimage(s string) (lntypes.Preimage, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return lntypes.Preimage{}, fmt.Errorf("invalid preimage: %w",
			err)
	}

	return lntypes.MakePreimage(b)
}
