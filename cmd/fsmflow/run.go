package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/viant/fsmflow"
	"github.com/viant/fsmflow/examples/turnstile"
	"github.com/viant/fsmflow/internal/logger"
	"github.com/viant/fsmflow/model/types"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run turnstile flows with concurrent producers",
	RunE:  runTurnstiles,
}

func init() {
	runCmd.Flags().Int("flows", 10, "Number of turnstile flows")
	runCmd.Flags().Int("producers", 4, "Number of producer goroutines per flow")
	runCmd.Flags().Int("visits", 100, "Number of coin and pass pairs per producer")
	runCmd.Flags().String("loop", "", "Loop kind overriding the config (inline, serial, pool)")
	runCmd.Flags().Int("workers", 0, "Pool workers overriding the config")
	runCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address until interrupted")
	rootCmd.AddCommand(runCmd)
}

func runTurnstiles(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	config, err := loadConfig(ctx, cmd)
	if err != nil {
		return err
	}
	if kind, _ := cmd.Flags().GetString("loop"); kind != "" {
		config.Loop.Kind = kind
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		config.Loop.Workers = workers
	}
	addr, _ := cmd.Flags().GetString("metrics-addr")
	if addr != "" {
		config.Metrics.Enabled = true
	}
	srv, err := fsmflow.New(fsmflow.WithConfig(config))
	if err != nil {
		return err
	}
	if err = srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Shutdown(context.Background())

	flows, _ := cmd.Flags().GetInt("flows")
	producers, _ := cmd.Flags().GetInt("producers")
	visits, _ := cmd.Flags().GetInt("visits")

	started := time.Now()
	gates := make([]*turnstile.Turnstile, 0, flows)
	receivers := make([]types.EventReceiver, 0, flows)
	for i := 0; i < flows; i++ {
		gate := turnstile.New(fmt.Sprintf("gate-%d", i))
		receiver, err := srv.Create(gate, gate.Locked())
		if err != nil {
			return err
		}
		gates = append(gates, gate)
		receivers = append(receivers, receiver)
	}

	var wg sync.WaitGroup
	for _, receiver := range receivers {
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < visits; i++ {
					receiver.AcceptEvent(turnstile.Coin)
					receiver.AcceptEvent(turnstile.Pass)
				}
			}()
		}
	}
	wg.Wait()
	for _, receiver := range receivers {
		receiver.AcceptEvent(turnstile.Shutdown)
	}
	if err = waitForCompletion(ctx, srv, int64(flows)); err != nil {
		return err
	}

	var coins, passes int64
	for _, gate := range gates {
		coins += gate.Coins()
		passes += gate.Passes()
	}
	report := struct {
		Stats   fsmflow.Stats `yaml:"stats"`
		Coins   int64         `yaml:"coins"`
		Passes  int64         `yaml:"passes"`
		Elapsed string        `yaml:"elapsed"`
	}{Stats: srv.Stats(), Coins: coins, Passes: passes, Elapsed: time.Since(started).String()}
	encoded, err := yaml.Marshal(report)
	if err != nil {
		return err
	}
	if _, err = cmd.OutOrStdout().Write(encoded); err != nil {
		return err
	}
	if addr != "" {
		return serveMetrics(ctx, srv, addr)
	}
	return nil
}

func waitForCompletion(ctx context.Context, srv *fsmflow.Service, flows int64) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for srv.Container().CompletedCount() < flows {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func serveMetrics(ctx context.Context, srv *fsmflow.Service, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(srv.Gatherer(), promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.Info("fsmflow: serving metrics", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
