/*
SPDX-License-Identifier: Apache-2.0
*/

// Package config loads the process configuration from a TOML or YAML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values. The chaincode ones match
// what the Fabric chaincode-as-a-service builder passes to the container.
const (
	EnvChaincodeID    = "CHAINCODE_ID"
	EnvServerAddress  = "CHAINCODE_SERVER_ADDRESS"
	EnvTLSDisabled    = "CHAINCODE_TLS_DISABLED"
	EnvTLSKey         = "CHAINCODE_TLS_KEY"
	EnvTLSCert        = "CHAINCODE_TLS_CERT"
	EnvClientCACert   = "CHAINCODE_CLIENT_CA_CERT"
	EnvLogLevel       = "LOG_LEVEL"
	EnvMetricsAddress = "METRICS_ADDRESS"
)

type Config struct {
	Chaincode  ChaincodeConfig  `toml:"chaincode" yaml:"chaincode"`
	Log        LogConfig        `toml:"log" yaml:"log"`
	Metrics    MetricsConfig    `toml:"metrics" yaml:"metrics"`
	Simulation SimulationConfig `toml:"simulation" yaml:"simulation"`
}

type ChaincodeConfig struct {
	ID          string `toml:"id" yaml:"id"`
	Address     string `toml:"address" yaml:"address"`
	TLSDisabled bool   `toml:"tls_disabled" yaml:"tls_disabled"`
	// PEM files, read only when TLS is enabled.
	KeyFile      string `toml:"key_file" yaml:"key_file"`
	CertFile     string `toml:"cert_file" yaml:"cert_file"`
	ClientCAFile string `toml:"client_ca_file" yaml:"client_ca_file"`
}

type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

type MetricsConfig struct {
	// Address of the /metrics and /healthz listener. Empty disables it.
	Address string `toml:"address" yaml:"address"`
}

// SimulationConfig sizes the in-process scenarios run by the simulate command.
type SimulationConfig struct {
	StartingBalance  uint64 `toml:"starting_balance" yaml:"starting_balance"`
	LotAmount        uint64 `toml:"lot_amount" yaml:"lot_amount"`
	ActivationAmount uint64 `toml:"activation_amount" yaml:"activation_amount"`
	StartPrice       uint64 `toml:"start_price" yaml:"start_price"`
	FloorPrice       uint64 `toml:"floor_price" yaml:"floor_price"`
	Duration         int64  `toml:"duration" yaml:"duration"` // seconds
	RoyaltyCap       uint64 `toml:"royalty_cap" yaml:"royalty_cap"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Chaincode: ChaincodeConfig{
			Address:     "0.0.0.0:9999",
			TLSDisabled: true,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Simulation: SimulationConfig{
			StartingBalance:  2000,
			LotAmount:        1,
			ActivationAmount: 1,
			StartPrice:       100,
			FloorPrice:       10,
			Duration:         1000,
			RoyaltyCap:       100,
		},
	}
}

// Load reads path over the defaults, choosing the decoder by extension, and
// applies environment overrides. An empty path only applies the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".toml":
			err = toml.Unmarshal(data, &cfg)
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, &cfg)
		default:
			return cfg, fmt.Errorf("unsupported config format %q", ext)
		}
		if err != nil {
			return cfg, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		EnvChaincodeID:    &c.Chaincode.ID,
		EnvServerAddress:  &c.Chaincode.Address,
		EnvTLSKey:         &c.Chaincode.KeyFile,
		EnvTLSCert:        &c.Chaincode.CertFile,
		EnvClientCACert:   &c.Chaincode.ClientCAFile,
		EnvLogLevel:       &c.Log.Level,
		EnvMetricsAddress: &c.Metrics.Address,
	}
	for env, dst := range str {
		if v, ok := lookup(env); ok {
			*dst = v
		}
	}
	if v, ok := lookup(EnvTLSDisabled); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTLSDisabled, err)
		}
		c.Chaincode.TLSDisabled = b
	}
	return nil
}

// ValidateServer checks what the chaincode-as-a-service server needs.
func (c Config) ValidateServer() error {
	var errs []error
	if c.Chaincode.ID == "" {
		errs = append(errs, errors.New("chaincode id is required"))
	}
	if c.Chaincode.Address == "" {
		errs = append(errs, errors.New("chaincode server address is required"))
	}
	if !c.Chaincode.TLSDisabled {
		if c.Chaincode.KeyFile == "" || c.Chaincode.CertFile == "" {
			errs = append(errs, errors.New("tls key and cert files are required unless tls is disabled"))
		}
	}
	return errors.Join(errs...)
}

// ValidateSimulation checks the scenario sizing.
func (c Config) ValidateSimulation() error {
	s := c.Simulation
	switch {
	case s.LotAmount == 0:
		return errors.New("simulation lot amount must be positive")
	case s.FloorPrice > s.StartPrice:
		return fmt.Errorf("simulation floor price %d exceeds start price %d", s.FloorPrice, s.StartPrice)
	case s.Duration <= 0:
		return errors.New("simulation duration must be positive")
	case s.StartingBalance < s.StartPrice+s.ActivationAmount:
		return fmt.Errorf("starting balance %d cannot cover start price and activation", s.StartingBalance)
	}
	return nil
}
