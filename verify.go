package lnurlpay

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
)

// InvoiceDecoder extracts the verifiable fields of an encoded invoice.
type InvoiceDecoder interface {
	Decode(paymentRequest string) (*Invoice, error)
}

// Bolt11Decoder decodes bolt11 invoices for a single network.
type Bolt11Decoder struct {
	Params *chaincfg.Params
}

// A compile time check to ensure Bolt11Decoder implements InvoiceDecoder.
var _ InvoiceDecoder = (*Bolt11Decoder)(nil)

// Decode decodes a bolt11 invoice. This also checks the invoice signature
// and that it was issued for the decoder's network.
func (d *Bolt11Decoder) Decode(paymentRequest string) (*Invoice, error) {
	inv, err := zpay32.Decode(paymentRequest, d.Params)
	if err != nil {
		return nil, fmt.Errorf("could not decode invoice: %w", err)
	}

	if inv.PaymentHash == nil {
		return nil, fmt.Errorf("invoice has no payment hash")
	}

	decoded := &Invoice{
		PaymentRequest: paymentRequest,
		PaymentHash:    lntypes.Hash(*inv.PaymentHash),
		AmountMsat:     inv.MilliSat,
	}
	if inv.DescriptionHash != nil {
		h := lntypes.Hash(*inv.DescriptionHash)
		decoded.DescriptionHash = &h
	}

	return decoded, nil
}

// VerifyInvoice checks that inv is the invoice the wallet asked for: it must
// be for exactly the requested amount and its description hash must commit to
// the offer's metadata. All checks are run and every failure is reported in a
// single VerificationError. An invoice that fails any check must not be paid.
func VerifyInvoice(inv *Invoice, offer *PayOffer,
	requested lnwire.MilliSatoshi) error {

	var mismatches []error

	switch {
	case inv.AmountMsat == nil:
		mismatches = append(mismatches, fmt.Errorf("%w: invoice has "+
			"no amount, requested %v", ErrAmountMismatch,
			requested))

	case *inv.AmountMsat != requested:
		mismatches = append(mismatches, fmt.Errorf("%w: invoice is "+
			"for %v, requested %v", ErrAmountMismatch,
			*inv.AmountMsat, requested))
	}

	expected := CommitmentHash(offer.Metadata)
	switch {
	case inv.DescriptionHash == nil:
		mismatches = append(mismatches, fmt.Errorf("%w: invoice has "+
			"no description hash", ErrMetadataHashMismatch))

	case *inv.DescriptionHash != expected:
		mismatches = append(mismatches, fmt.Errorf("%w: got %v, "+
			"expected %v", ErrMetadataHashMismatch,
			inv.DescriptionHash, expected))
	}

	if len(mismatches) > 0 {
		return &VerificationError{Mismatches: mismatches}
	}

	return nil
}
