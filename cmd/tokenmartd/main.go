package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tokenmart/config"
	"tokenmart/core/events"
	"tokenmart/core/state"
	"tokenmart/core/types"
	"tokenmart/native/market"
	"tokenmart/observability/logging"
	"tokenmart/rpc"
)

const rpcTokenEnv = "TOKENMART_RPC_TOKEN"

// eventLogger forwards emitted market events to the structured log so
// external observers can tail notifications without an indexer.
type eventLogger struct {
	logger *slog.Logger
}

func (e eventLogger) Emit(evt events.Event) {
	payload, ok := evt.(interface{ Event() *types.Event })
	if !ok || payload.Event() == nil {
		return
	}
	event := payload.Event()
	args := make([]any, 0, len(event.Attributes)*2)
	for key, value := range event.Attributes {
		args = append(args, key, value)
	}
	e.logger.Info(event.Type, args...)
}

func main() {
	configPath := flag.String("config", "config.toml", "path to the service configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("tokenmartd", cfg.Environment)

	operator, err := cfg.Operator()
	if err != nil {
		logger.Error("invalid operator address", "err", err)
		os.Exit(1)
	}
	vault, err := cfg.Vault()
	if err != nil {
		logger.Error("invalid vault address", "err", err)
		os.Exit(1)
	}

	ledger := state.NewLedger()
	engine := market.NewEngine()
	engine.SetCustody(ledger)
	engine.SetPayment(ledger)
	engine.SetJournal(ledger)
	engine.SetOperator(operator)
	engine.SetVault(vault)
	engine.SetPauses(config.Pauses{Market: cfg.PauseMarket})
	engine.SetEmitter(eventLogger{logger: logger})
	ledger.SetModuleAccount(vault, engine)

	server := rpc.NewServer(engine, os.Getenv(rpcTokenEnv))
	server.RegisterPaymentToken("TMT", ledger)

	rpcSrv := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics listening", "addr", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "err", err)
		}
	}()

	go func() {
		logger.Info("rpc listening", "addr", cfg.RPCAddress)
		if err := rpcSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("rpc server stopped", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = rpcSrv.Shutdown(ctx)
	_ = metricsSrv.Shutdown(ctx)
}
