package main

import (
	"fmt"

	"github.com/ellemouton/lnurlpay"
	"github.com/urfave/cli/v2"
)

var encodeCommand = &cli.Command{
	Name:      "encode",
	Usage:     "Encode a url as an LNURL",
	ArgsUsage: "url",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return fmt.Errorf("expected a single url argument")
		}

		lnurl, err := lnurlpay.EncodeURL(ctx.Args().First())
		if err != nil {
			return err
		}

		fmt.Println(lnurl)

		return nil
	},
}

var decodeCommand = &cli.Command{
	Name:      "decode",
	Usage:     "Resolve an LNURL, lnurlp:// url or Lightning Address to its url",
	ArgsUsage: "lnurl",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "notls",
			Usage: "set to true to allow http instead of https",
		},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return fmt.Errorf("expected a single lnurl argument")
		}

		u, err := lnurlpay.ResolveEndpoint(
			ctx.Args().First(), ctx.Bool("notls"),
		)
		if err != nil {
			return err
		}

		fmt.Println(u)

		return nil
	},
}
