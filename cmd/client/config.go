package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// fileConfig holds the values that can be set in the yaml config file. They
// are only used for flags that were not set on the command line or through
// the environment.
type fileConfig struct {
	Host     string `yaml:"host"`
	Network  string `yaml:"network"`
	MacPath  string `yaml:"macpath"`
	TLSPath  string `yaml:"tlspath"`
	DB       string `yaml:"db"`
	LogLevel string `yaml:"loglevel"`
	MaxFee   *int64 `yaml:"maxfee"`
	NoTLS    *bool  `yaml:"notls"`
}

func loadConfigFile(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse config %v: %w", path,
			err)
	}

	return &cfg, nil
}

// defaults returns the flag values the config file provides.
func (c *fileConfig) defaults() map[string]string {
	values := map[string]string{
		"host":     c.Host,
		"network":  c.Network,
		"macpath":  c.MacPath,
		"tlspath":  c.TLSPath,
		"db":       c.DB,
		"loglevel": c.LogLevel,
	}
	if c.MaxFee != nil {
		values["maxfee"] = strconv.FormatInt(*c.MaxFee, 10)
	}
	if c.NoTLS != nil {
		values["notls"] = strconv.FormatBool(*c.NoTLS)
	}

	return values
}

// applyConfigFile sets every global flag that was not given explicitly to
// the value from the --config file, if any. Command flags are resolved when
// the command runs, see commandDefault.
func applyConfigFile(ctx *cli.Context) error {
	path := ctx.String("config")
	if path == "" {
		return nil
	}

	cfg, err := loadConfigFile(path)
	if err != nil {
		return err
	}

	for name, value := range cfg.defaults() {
		if value == "" || ctx.IsSet(name) {
			continue
		}

		// Not every key is a global flag.
		if !hasFlag(ctx.App.Flags, name) {
			continue
		}

		if err := ctx.Set(name, value); err != nil {
			return fmt.Errorf("config %v: %w", name, err)
		}
	}

	return nil
}

// commandDefault applies the config file to a command level flag.
func commandDefault(ctx *cli.Context, name string) error {
	path := ctx.String("config")
	if path == "" || ctx.IsSet(name) {
		return nil
	}

	cfg, err := loadConfigFile(path)
	if err != nil {
		return err
	}

	value, ok := cfg.defaults()[name]
	if !ok || value == "" {
		return nil
	}

	return ctx.Set(name, value)
}

func hasFlag(flags []cli.Flag, name string) bool {
	for _, f := range flags {
		for _, n := range f.Names() {
			if n == name {
				return true
			}
		}
	}

	return false
}
