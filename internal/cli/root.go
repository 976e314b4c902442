/*
SPDX-License-Identifier: Apache-2.0
*/

package cli

import (
	"fmt"

	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/config"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

// NewRootCommand creates the root command for the royalty auction CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "royalty-auction",
		Short: "Dutch auction chaincode with royalty payouts",
		Long: `Runs the royalty Dutch auction as Fabric chaincode, either launched by the
peer or as an external chaincode-as-a-service server, and replays the auction
scenarios in process.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.LogFormat {
			case "", logging.FormatJSON, logging.FormatConsole:
				return nil
			}
			return fmt.Errorf("invalid log format %q: must be %s or %s", opts.LogFormat, logging.FormatJSON, logging.FormatConsole)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a TOML or YAML config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level, overrides the config (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format, overrides the config (json|console)")

	cmd.AddCommand(NewStartCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSimulateCommand(opts))

	return cmd
}

// load reads the configuration and applies the logging flags on top of it.
func (o *RootOptions) load() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return cfg, nil, err
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}
