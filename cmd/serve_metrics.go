package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alapierre/go-dian-client/dian/lifecycle"
	"github.com/go-faster/errors"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	metricsAddr  string
	pollInterval time.Duration
)

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics [invoice-id...]",
	Short: "Expose Prometheus metrics, optionally polling submitted invoices",
	Long: `Serves /metrics. Invoice ids given as arguments are resumed from the event
log and polled every --interval until they reach a final state.`,
	RunE: runServeMetrics,
}

func init() {
	rootCmd.AddCommand(serveMetricsCmd)
	serveMetricsCmd.Flags().StringVar(&metricsAddr, "address", "", "Listen address (env: DIAN_METRICS_ADDR)")
	serveMetricsCmd.Flags().DurationVar(&pollInterval, "interval", 30*time.Second, "Status polling interval")
}

func runServeMetrics(cmd *cobra.Command, args []string) error {
	addr := metricsAddr
	if addr == "" {
		addr = cfg.MetricsAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		logrus.WithField("address", addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	if len(args) > 0 {
		go a.pollLoop(ctx, clockwork.NewRealClock(), pollInterval, args)
	}

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdown)
}

// pollLoop polls every pending invoice until none is left in Submitted.
func (a *app) pollLoop(ctx context.Context, clock clockwork.Clock, every time.Duration, ids []string) {
	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		s, err := a.pipeline.Resume(ctx, id)
		if err != nil {
			logrus.WithError(err).WithField("invoice", id).Error("cannot resume invoice")
			continue
		}
		pending[id] = s == lifecycle.Submitted
	}

	t := clock.NewTicker(every)
	defer t.Stop()
	for {
		left := 0
		for id, ok := range pending {
			if !ok {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			out, err := a.pipeline.Poll(ctx, id)
			if err != nil {
				logrus.WithError(err).WithField("invoice", id).Warn("status query failed")
			}
			if out == nil || out.State != lifecycle.Submitted {
				pending[id] = false
				continue
			}
			left++
		}
		if left == 0 {
			logrus.Info("no invoice left to poll")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-t.Chan():
		}
	}
}
