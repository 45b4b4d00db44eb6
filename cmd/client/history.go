package main

import (
	"fmt"

	"github.com/ellemouton/lnurlpay"
	"github.com/ellemouton/lnurlpay/paystore"
	"github.com/urfave/cli/v2"
)

var historyCommand = &cli.Command{
	Name:  "history",
	Usage: "List past LNURL payments",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "limit",
			Usage: "the maximum number of payments to list",
			Value: 20,
		},
	},
	Action: listPayments,
}

func listPayments(ctx *cli.Context) error {
	path := ctx.String("db")
	if path == "" {
		return fmt.Errorf("missing '--db' flag")
	}

	store, err := paystore.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	payments, err := store.Payments(ctx.Context, ctx.Int("limit"))
	if err != nil {
		return err
	}

	for _, p := range payments {
		fmt.Printf("%s %-9s %-10v %s\n",
			p.CreatedAt.Format("2006-01-02 15:04:05"), p.Status,
			p.AmountMsat, p.Domain)

		if p.FailureReason != "" {
			fmt.Printf("    reason: %s\n", p.FailureReason)
		}

		action, err := lnurlpay.ParseSuccessAction(p.SuccessAction)
		if err != nil {
			fmt.Printf("    invalid success action: %v\n", err)
			continue
		}
		if action != nil {
			fmt.Printf("    success action: %s\n", action.Tag())
			printAction(action)
		}
	}

	return nil
}
