/*
SPDX-License-Identifier: Apache-2.0
*/

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/config"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/metrics"
	auction "github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/smart-contract"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewStartCommand creates the start command, used when the peer launches the chaincode.
func NewStartCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the chaincode under a peer",
		Long: `Starts the chaincode the way a Fabric peer launches it. The peer supplies
CORE_CHAINCODE_ID_NAME and CORE_PEER_ADDRESS in the environment. Balances are
never minted and must be seeded in world state out of band.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := rootOpts.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			cc, rec, err := newChaincode(log)
			if err != nil {
				return err
			}
			stop := serveMetrics(cmd.Context(), cfg.Metrics.Address, rec, log)
			defer stop()

			log.Info("starting chaincode")
			if err := cc.Start(); err != nil {
				return fmt.Errorf("error starting chaincode: %w", err)
			}
			return nil
		},
	}
}

// NewServeCommand creates the serve command, which runs chaincode as a service.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chaincode as an external service",
		Long: `Serves the chaincode over gRPC for the chaincode-as-a-service builder.

The chaincode moves balances but never creates them. Currency and lot
balances under the "balance" composite key must be seeded in world state
out of band, for example by a genesis transaction, before participants can
join or deposit.

Example:
  CHAINCODE_ID=royalty:abc CHAINCODE_SERVER_ADDRESS=0.0.0.0:9999 royalty-auction serve
  royalty-auction serve --config auction.toml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := rootOpts.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if err := cfg.ValidateServer(); err != nil {
				return fmt.Errorf("invalid server config: %w", err)
			}
			tls, err := tlsProperties(cfg.Chaincode)
			if err != nil {
				return err
			}
			cc, rec, err := newChaincode(log)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			stop := serveMetrics(ctx, cfg.Metrics.Address, rec, log)
			defer stop()

			server := &shim.ChaincodeServer{
				CCID:     cfg.Chaincode.ID,
				Address:  cfg.Chaincode.Address,
				CC:       cc,
				TLSProps: tls,
			}
			log.Info("serving chaincode",
				zap.String("ccid", cfg.Chaincode.ID),
				zap.String("address", cfg.Chaincode.Address),
				zap.Bool("tls", !tls.Disabled))

			errc := make(chan error, 1)
			go func() { errc <- server.Start() }()
			select {
			case err := <-errc:
				if err != nil {
					return fmt.Errorf("chaincode server stopped: %w", err)
				}
				return nil
			case <-ctx.Done():
				log.Info("shutting down")
				return nil
			}
		},
	}
}

func newChaincode(log *zap.Logger) (*contractapi.ContractChaincode, *metrics.Recorder, error) {
	rec, err := metrics.NewRecorder()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	cc, err := contractapi.NewChaincode(auction.New(log, rec))
	if err != nil {
		return nil, nil, fmt.Errorf("error creating royalty auction chaincode: %w", err)
	}
	return cc, rec, nil
}

func tlsProperties(cfg config.ChaincodeConfig) (shim.TLSProperties, error) {
	props := shim.TLSProperties{Disabled: cfg.TLSDisabled}
	if cfg.TLSDisabled {
		return props, nil
	}
	var err error
	if props.Key, err = os.ReadFile(cfg.KeyFile); err != nil {
		return props, fmt.Errorf("failed to read tls key: %w", err)
	}
	if props.Cert, err = os.ReadFile(cfg.CertFile); err != nil {
		return props, fmt.Errorf("failed to read tls cert: %w", err)
	}
	if cfg.ClientCAFile != "" {
		if props.ClientCACerts, err = os.ReadFile(cfg.ClientCAFile); err != nil {
			return props, fmt.Errorf("failed to read client ca cert: %w", err)
		}
	}
	return props, nil
}

// newMetricsRouter routes /metrics to the recorder and /healthz to a liveness probe.
func newMetricsRouter(rec *metrics.Recorder) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(rec.Gatherer(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)
	return r
}

// serveMetrics listens on addr until ctx ends or the returned stop is called.
// An empty addr serves nothing.
func serveMetrics(ctx context.Context, addr string, rec *metrics.Recorder, log *zap.Logger) (stop func()) {
	if addr == "" {
		return func() {}
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           newMetricsRouter(rec),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("metrics listening", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	return func() { close(done) }
}
