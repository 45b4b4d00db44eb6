package main

import (
	"context"
	"fmt"
	"os"

	"github.com/btcsuite/btclog"
	"github.com/ellemouton/lnurlpay"
	"github.com/lightninglabs/lndclient"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()

	app.Name = "lndurl-server"
	app.Usage = "LNURL-pay service backed by lnd"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "protocol",
			Value: "http",
			Usage: "protocol the service is reached with",
		},
		&cli.StringFlag{
			Name:  "host",
			Value: "localhost",
			Usage: "host the service is reached at",
		},
		&cli.IntFlag{
			Name:  "port",
			Value: 8080,
			Usage: "port to listen on",
		},
		&cli.StringFlag{
			Name:    "lndaddr",
			Value:   "localhost:10009",
			Usage:   "lnd instance rpc address",
			EnvVars: []string{"LNDURL_LND_HOST"},
		},
		&cli.StringFlag{
			Name:    "network",
			Value:   "regtest",
			Usage:   "the network",
			EnvVars: []string{"LNDURL_NETWORK"},
		},
		&cli.StringFlag{
			Name:    "macpath",
			Usage:   "Path to lnd's mac dir",
			EnvVars: []string{"LNDURL_MACAROON_DIR"},
		},
		&cli.StringFlag{
			Name:    "tlspath",
			Usage:   "Path to lnd's tls cert",
			EnvVars: []string{"LNDURL_TLS_PATH"},
		},
		&cli.StringFlag{
			Name:  "description",
			Value: "LNDURL-pay",
			Usage: "description shown to payers",
		},
		&cli.Int64Flag{
			Name:  "minsendable",
			Value: 1000,
			Usage: "smallest accepted amount in millisats",
		},
		&cli.Int64Flag{
			Name:  "maxsendable",
			Value: 100_000_000,
			Usage: "largest accepted amount in millisats",
		},
		&cli.IntFlag{
			Name:  "commentallowed",
			Usage: "max comment length, 0 disables comments",
		},
		&cli.StringFlag{
			Name:  "successmessage",
			Usage: "message shown to payers after paying",
		},
		&cli.DurationFlag{
			Name:  "offerttl",
			Value: lnurlpay.DefaultOfferTTL,
			Usage: "how long an invoice callback stays valid",
		},
		&cli.IntFlag{
			Name:  "invoicerate",
			Usage: "invoice requests per minute allowed from one ip, 0 disables the limit",
		},
		&cli.IntFlag{
			Name:  "invoiceburst",
			Value: lnurlpay.DefaultInvoiceBurst,
			Usage: "burst of invoice requests allowed on top of invoicerate",
		},
		&cli.StringFlag{
			Name:  "loglevel",
			Value: "info",
			Usage: "logging level",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "[lndurl-server] %v\n", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	lvl, ok := btclog.LevelFromString(ctx.String("loglevel"))
	if !ok {
		return fmt.Errorf("unknown log level %q",
			ctx.String("loglevel"))
	}
	logger := btclog.NewBackend(os.Stderr).Logger(lnurlpay.Subsystem)
	logger.SetLevel(lvl)
	lnurlpay.UseLogger(logger)

	// Connect to LND.
	lnd, err := lndclient.NewLndServices(&lndclient.LndServicesConfig{
		LndAddress:  ctx.String("lndaddr"),
		Network:     lndclient.Network(ctx.String("network")),
		MacaroonDir: ctx.String("macpath"),
		TLSPath:     ctx.String("tlspath"),
	})
	if err != nil {
		return err
	}
	defer lnd.Close()

	info, err := lnd.Client.GetInfo(context.Background())
	if err != nil {
		return err
	}

	fmt.Println("Connected to node with alias:", info.Alias)

	server := lnurlpay.NewServer(&lnurlpay.ServerConfig{
		Protocol:        ctx.String("protocol"),
		Host:            ctx.String("host"),
		Port:            ctx.Int("port"),
		Description:     ctx.String("description"),
		MinMsatSendable: lnwire.MilliSatoshi(ctx.Int64("minsendable")),
		MaxMsatSendable: lnwire.MilliSatoshi(ctx.Int64("maxsendable")),
		CommentAllowed:  ctx.Int("commentallowed"),
		SuccessMessage:  ctx.String("successmessage"),
		OfferTTL:        ctx.Duration("offerttl"),
		InvoiceRate:     ctx.Int("invoicerate"),
		InvoiceBurst:    ctx.Int("invoiceburst"),
	}, lnurlpay.NewLndInvoicer(lnd.Client, ctx.String("description")))

	return server.Run()
}
