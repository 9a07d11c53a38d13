package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/photostack/internal/ir"
)

// maxIngestLine bounds a single NDJSON event line.
const maxIngestLine = 1 << 20

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	MetricsListen string
}

// IngestSummary is printed when the run command finishes.
type IngestSummary struct {
	Published int            `json:"published"`
	Rejected  int            `json:"rejected"`
	LastSeq   int64          `json:"lastSeq"`
	ByEvent   map[string]int `json:"byEvent"`
}

func (s IngestSummary) String() string {
	return fmt.Sprintf("published %d event(s), rejected %d, last seq %d", s.Published, s.Rejected, s.LastSeq)
}

// ingestLine is one NDJSON record read from stdin.
type ingestLine struct {
	Name    ir.EventName   `json:"name"`
	Payload map[string]any `json:"payload"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Consume asset events from stdin",
		Long: `Start the stacking engine and feed it asset events read from stdin,
one JSON object per line:

  {"name":"AssetMetadataExtracted","payload":{"assetId":"A1","userId":"U1"}}
  {"name":"AssetDelete","payload":{"assetId":"A1","userId":"U1"}}

The database is locked for the lifetime of the process. On end of input
the engine drains outstanding events and prints a summary. SIGINT and
SIGTERM stop reading and drain as well.

Examples:
  metadata-pipeline | stackctl run --db ./photostack.db
  stackctl run --metrics-listen 127.0.0.1:9464 < events.ndjson`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsListen, "metrics-listen", "", "serve Prometheus metrics on this address (overrides config)")

	return cmd
}

func runIngest(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	lock := flock.New(cfg.Database.Path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to lock database", err)
	}
	if !locked {
		return NewExitError(ExitCommandError, fmt.Sprintf("database %s is in use by another process", cfg.Database.Path))
	}
	defer func() { _ = lock.Unlock() }()

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	a, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	listen := a.cfg.Metrics.Listen
	if opts.MetricsListen != "" {
		listen = opts.MetricsListen
	}
	if listen != "" {
		srv, err := serveMetrics(a, listen)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start metrics listener", err)
		}
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	a.logger.Info("engine started", "db", a.cfg.Database.Path, "last_seq", a.bus.Seq())

	summary, err := ingest(ctx, a, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read input", err)
	}

	if err := a.drain(context.Background()); err != nil {
		a.logger.Warn("events still pending at shutdown", "pending", a.bus.Pending(), "error", err)
	}
	summary.LastSeq = a.bus.Seq()
	a.logger.Info("engine stopped", "published", summary.Published, "rejected", summary.Rejected)

	return formatter(opts.RootOptions, cmd).Success(summary)
}

// serveMetrics starts the /metrics endpoint for the app's registry.
func serveMetrics(a *app, addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", ln.Addr().String())
	return srv, nil
}

// ingest publishes every valid line of r until EOF or ctx is cancelled.
// Malformed lines and events other than asset events are logged and counted
// as rejected.
func ingest(ctx context.Context, a *app, r io.Reader) (IngestSummary, error) {
	summary := IngestSummary{ByEvent: map[string]int{}}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxIngestLine)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				scanErr <- nil
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	lineNo := 0
	for {
		select {
		case <-ctx.Done():
			return summary, nil
		case line, ok := <-lines:
			if !ok {
				return summary, <-scanErr
			}
			lineNo++
			if len(line) == 0 {
				continue
			}

			ev, err := parseIngestLine([]byte(line))
			if err != nil {
				summary.Rejected++
				a.logger.Warn("rejected input line", "line", lineNo, "error", err)
				continue
			}
			if err := a.bus.Publish(ctx, ev); err != nil {
				if ctx.Err() != nil {
					return summary, nil
				}
				summary.Rejected++
				a.logger.Error("publish failed", "line", lineNo, "event", ev.Name, "error", err)
				continue
			}
			summary.Published++
			summary.ByEvent[string(ev.Name)]++
		}
	}
}

// parseIngestLine decodes one NDJSON record into a bus event.
func parseIngestLine(data []byte) (ir.Event, error) {
	var in ingestLine
	if err := json.Unmarshal(data, &in); err != nil {
		return ir.Event{}, fmt.Errorf("invalid JSON: %w", err)
	}

	switch in.Name {
	case ir.EventAssetMetadataExtracted, ir.EventAssetDelete:
	case "":
		return ir.Event{}, errors.New("missing event name")
	default:
		return ir.Event{}, fmt.Errorf("event %q cannot be ingested", in.Name)
	}

	payload, err := ir.DecodePayload(in.Name, in.Payload)
	if err != nil {
		return ir.Event{}, err
	}
	p := payload.(ir.AssetEvent)
	if p.AssetID == "" || p.UserID == "" {
		return ir.Event{}, errors.New("payload needs assetId and userId")
	}
	return ir.Event{Name: in.Name, Payload: p}, nil
}
