package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/btcsuite/btcutil"
	"github.com/ellemouton/lnurlpay"
	"github.com/ellemouton/lnurlpay/paystore"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/urfave/cli/v2"
)

var payRequestCommand = &cli.Command{
	Name:        "pay",
	Usage:       "Pay to LNURL",
	Description: `Pay to a static LNURL, lnurlp:// url or Lightning Address`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "lnurl",
			Usage: "The LNURL to pay to.",
		},
		&cli.Int64Flag{
			Name:  "amt",
			Usage: "The amt of millisats to pay",
		},
		&cli.StringFlag{
			Name:  "comment",
			Usage: "optional comment for the recipient",
		},
		&cli.Int64Flag{
			Name:  "maxfee",
			Usage: "max fee to pay for this payment (in sats)",
			Value: 10,
		},
		&cli.BoolFlag{
			Name:  "notls",
			Usage: "set to true to allow http instead of https",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "timeout of every request to the LN SERVICE",
			Value: lnurlpay.DefaultTimeout,
		},
	},
	Action: payToLNURL,
}

func payToLNURL(ctx *cli.Context) error {
	// LNURL must be specified.
	lnurl := ctx.String("lnurl")
	if lnurl == "" {
		return fmt.Errorf("missing '--lnurl' flag")
	}

	for _, name := range []string{"maxfee", "notls"} {
		if err := commandDefault(ctx, name); err != nil {
			return err
		}
	}

	params, err := chainParams(ctx.String("network"))
	if err != nil {
		return err
	}

	lndClient, err := getLND(ctx)
	if err != nil {
		return fmt.Errorf("could not connect to LND: %w", err)
	}
	defer lndClient.Close()

	cfg := &lnurlpay.FlowConfig{
		Transport: lnurlpay.NewHTTPTransport(&lnurlpay.TransportConfig{
			Timeout:       ctx.Duration("timeout"),
			AllowInsecure: ctx.Bool("notls"),
		}),
		Decoder: &lnurlpay.Bolt11Decoder{Params: params},
		Backend: lnurlpay.NewLndPayer(
			lndClient.Client, btcutil.Amount(ctx.Int64("maxfee")),
		),
		Origin: lnurlpay.Origin{Name: "lndurl-client"},
	}

	if path := ctx.String("db"); path != "" {
		store, err := paystore.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()

		cfg.Recorder = store
	}

	flow := lnurlpay.NewPayFlow(cfg)

	// Tear the flow down on interrupt so that nothing in flight is
	// applied afterwards.
	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt)
	defer stop()
	go func() {
		<-sigCtx.Done()
		flow.Dispose()
	}()

	if err := flow.Resolve(sigCtx, lnurl); err != nil {
		return err
	}

	printOffer(flow.Offer())

	reader := bufio.NewReader(os.Stdin)
	req := lnurlpay.PaymentRequest{
		AmountMsat: lnwire.MilliSatoshi(ctx.Int64("amt")),
		Comment:    ctx.String("comment"),
	}

	// Keep asking until the offer accepts the amount and comment.
	for {
		err := flow.Submit(sigCtx, req)
		if lnurlpay.ErrorKindOf(err) != lnurlpay.KindInvalidUserInput {
			break
		}

		fmt.Println(err)

		var inputErr *lnurlpay.InputError
		if errors.As(err, &inputErr) && inputErr.Field == "comment" {
			req.Comment, err = promptComment(reader, flow)
		} else {
			req.AmountMsat, err = promptAmount(reader, flow)
		}
		if err != nil {
			_ = flow.Reject()
			return err
		}
	}

	return printOutcome(flow)
}

func printOffer(offer *lnurlpay.PayOffer) {
	fmt.Printf("Send payment to: %s\n", offer.Domain)

	// The offer was validated when it was resolved.
	doc, _ := lnurlpay.ParseMetadata(offer.Metadata)
	for _, entry := range doc.Displayable() {
		switch entry.Kind {
		case lnurlpay.KindPlainText:
			fmt.Printf("Description: %s\n", entry.Content)
		case lnurlpay.KindLongDesc:
			fmt.Printf("Full Description: %s\n", entry.Content)
		default:
			fmt.Printf("Image: %s (%d bytes)\n", entry.Type,
				len(entry.Content))
		}
	}

	if offer.FixedAmount() {
		fmt.Printf("Amount: %d sat\n", offer.MinSendable.ToSatoshis())
	}
}

func promptAmount(reader *bufio.Reader,
	flow *lnurlpay.PayFlow) (lnwire.MilliSatoshi, error) {

	minSendable, maxSendable := flow.Bounds()
	fmt.Printf("Enter an amount (in millisatoshis) between "+
		"%d and %d\n", minSendable, maxSendable)

	userInput, err := reader.ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("could not read from console: %w", err)
	}
	userInput = strings.TrimSpace(userInput)

	millisats, err := strconv.ParseUint(userInput, 10, 64)
	if err != nil {
		fmt.Printf("error parsing input: %v\n", err)
		return 0, nil
	}

	return lnwire.MilliSatoshi(millisats), nil
}

func promptComment(reader *bufio.Reader,
	flow *lnurlpay.PayFlow) (string, error) {

	allowed := flow.CommentAllowed()
	if allowed == 0 {
		fmt.Println("The recipient does not accept comments, " +
			"dropping it")
		return "", nil
	}

	fmt.Printf("Enter a comment of at most %d characters\n", allowed)

	userInput, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("could not read from console: %w", err)
	}

	return strings.TrimSpace(userInput), nil
}

func printOutcome(flow *lnurlpay.PayFlow) error {
	switch flow.Phase() {
	case lnurlpay.PhaseClosed:
		printPayment(flow.Payment())
		printAction(flow.SuccessAction())

		return nil

	case lnurlpay.PhaseRejected:
		return fmt.Errorf("request rejected by user")
	}

	err := flow.Err()
	if lnurlpay.ErrorKindOf(err) == lnurlpay.KindUnsupportedSuccessAction {
		printPayment(flow.Payment())

		var actionErr *lnurlpay.UnsupportedActionError
		if errors.As(err, &actionErr) {
			fmt.Println(actionErr)
		}

		return nil
	}

	return err
}

func printPayment(payment *lnurlpay.PaymentResult) {
	if payment.Preimage == (lntypes.Preimage{}) {
		fmt.Println("Successful payment!")
		return
	}

	fmt.Printf("Successful payment! Preimage: %s\n", payment.Preimage)
}

func printAction(action lnurlpay.SuccessAction) {
	switch a := action.(type) {
	case *lnurlpay.MessageAction:
		fmt.Printf("Message: %s\n", a.Message)

	case *lnurlpay.URLAction:
		fmt.Printf("Description: %s\nUrl: %s\n", a.Description, a.URL)
	}
}
