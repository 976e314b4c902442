/*
SPDX-License-Identifier: Apache-2.0
*/

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/escrow"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/harness"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/metrics"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/protocol"
	"github.com/spf13/cobra"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Output string // "text" | "json"
	Seed   int64
	List   bool
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate [scenario...]",
		Short: "Replay auction scenarios in process",
		Long: `Plays auction scenarios against an in-memory ledger and a simulated clock.
Every participant runs its role script concurrently. With no arguments all
scenarios run in order.

Example:
  royalty-auction simulate
  royalty-auction simulate purchase-in-mid cancel --output json
  royalty-auction simulate --list`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "output format (text|json)")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 1, "seed for random royalty weights")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list scenarios and exit")

	return cmd
}

func runSimulate(cmd *cobra.Command, opts *SimulateOptions, names []string) error {
	out := cmd.OutOrStdout()
	if opts.Output != "text" && opts.Output != "json" {
		return fmt.Errorf("invalid output %q: must be text or json", opts.Output)
	}
	if opts.List {
		return listScenarios(out)
	}

	scenarios := harness.Scenarios()
	if len(names) > 0 {
		scenarios = scenarios[:0]
		for _, name := range names {
			s, ok := harness.Lookup(name)
			if !ok {
				return fmt.Errorf("unknown scenario %q", name)
			}
			scenarios = append(scenarios, s)
		}
	}

	cfg, log, err := opts.load()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	if err := cfg.ValidateSimulation(); err != nil {
		return err
	}
	rec, err := metrics.NewRecorder()
	if err != nil {
		return err
	}

	runOpts := harness.OptionsFrom(cfg.Simulation)
	runOpts.Seed = opts.Seed
	runOpts.Logger = log
	runOpts.Metrics = rec

	results := make([]harness.Result, 0, len(scenarios))
	for _, s := range scenarios {
		res, err := harness.Run(cmd.Context(), s, runOpts)
		if err != nil {
			return err
		}
		results = append(results, res)
	}

	if opts.Output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return printResults(out, results)
}

func listScenarios(out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, s := range harness.Scenarios() {
		fmt.Fprintf(tw, "%s\t%s\n", s.Name, s.Description)
	}
	return tw.Flush()
}

func printResults(out io.Writer, results []harness.Result) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tLIFECYCLE\tPRICE\tBALANCES")
	for _, r := range results {
		balances := make([]string, 0, len(r.Balances))
		for _, b := range r.Balances {
			balances = append(balances, fmt.Sprintf("%s=%d%s", b.Owner, b.Amount, assetSuffix(b.Asset)))
		}
		price := "-"
		if r.Lifecycle == protocol.Accepted {
			price = fmt.Sprint(r.Price)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Scenario, r.Lifecycle, price, strings.Join(balances, " "))
	}
	return tw.Flush()
}

func assetSuffix(asset string) string {
	if asset == escrow.Currency {
		return ""
	}
	return asset
}
