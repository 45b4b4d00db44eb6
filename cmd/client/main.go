package main

import (
	"fmt"
	"os"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btclog"
	"github.com/ellemouton/lnurlpay"
	"github.com/lightninglabs/lndclient"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()

	app.Name = "lndurl-client"
	app.Usage = "Cli for lndurl-client"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "path to a yaml file with default flag values",
		},
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost:10009",
			Usage:   "lnd instance rpc address",
			EnvVars: []string{"LNDURL_LND_HOST"},
		},
		&cli.StringFlag{
			Name:    "network",
			Value:   "mainnet",
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
			Name:    "db",
			Usage:   "path to the payment history database, history is not kept if empty",
			EnvVars: []string{"LNDURL_DB"},
		},
		&cli.StringFlag{
			Name:  "loglevel",
			Value: "info",
			Usage: "logging level: trace, debug, info, warn, error, critical or off",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		if err := applyConfigFile(ctx); err != nil {
			return err
		}

		return setupLogging(ctx.String("loglevel"))
	}
	app.Commands = append(
		app.Commands, payRequestCommand, historyCommand,
		encodeCommand, decodeCommand,
	)

	err := app.Run(os.Args)
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[lndurl-client] %v\n", err)
	os.Exit(1)
}

func setupLogging(level string) error {
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}

	backend := btclog.NewBackend(os.Stderr)

	logger := backend.Logger(lnurlpay.Subsystem)
	logger.SetLevel(lvl)
	lnurlpay.UseLogger(logger)

	lndLogger := backend.Logger("LNDC")
	lndLogger.SetLevel(lvl)
	lndclient.UseLogger(lndLogger)

	return nil
}

func getLND(ctx *cli.Context) (*lndclient.GrpcLndServices, error) {
	return lndclient.NewLndServices(&lndclient.LndServicesConfig{
		LndAddress:  ctx.String("host"),
		Network:     lndclient.Network(ctx.String("network")),
		MacaroonDir: ctx.String("macpath"),
		TLSPath:     ctx.String("tlspath"),
	})
}

func chainParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}
