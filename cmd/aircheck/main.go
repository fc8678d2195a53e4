// Command aircheck tunes an AI commentator to live radio: it decodes the
// selected station's stream to raw PCM, feeds it to the OpenAI Realtime API
// in measured turns, and fans the model's text commentary out to browsers
// over Server-Sent Events.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/aircheck/internal/broadcast"
	"github.com/MrWong99/aircheck/internal/config"
	"github.com/MrWong99/aircheck/internal/health"
	"github.com/MrWong99/aircheck/internal/observe"
	"github.com/MrWong99/aircheck/internal/pipeline"
	"github.com/MrWong99/aircheck/internal/realtime"
	"github.com/MrWong99/aircheck/internal/server"
	"github.com/MrWong99/aircheck/internal/source"
	"github.com/MrWong99/aircheck/internal/stats"
)

// kpiLogInterval is the cadence of the periodic pipeline KPI log line.
const kpiLogInterval = time.Minute

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Logger ────────────────────────────────────────────────────────────────
	// Created before the config loads so load-time warnings are structured;
	// the level var is adjusted once the config is known and on every reload.
	logLevel := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// ── Configuration with hot reload ─────────────────────────────────────────
	catalog := source.NewCatalog(nil)
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyReload(config.Diff(old, new), new, logLevel, catalog)
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "aircheck: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "aircheck: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()

	cfg := watcher.Current()
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	catalog.Replace(stationsFromConfig(cfg.Stations))

	slog.Info("aircheck starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"stations", catalog.Len(),
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "aircheck"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Core components ───────────────────────────────────────────────────────
	selector := source.NewSelector()
	broadcaster := broadcast.New(
		broadcast.WithBufferSize(cfg.Broadcast.BufferSize),
		broadcast.WithDropHook(func() {
			metrics.DroppedMessages.Add(context.Background(), 1)
		}),
	)
	kpi := stats.NewPipeline(100)

	decoder := source.NewDecoder(
		source.WithFFmpegPath(cfg.Audio.FFmpegPath),
		source.WithSampleRate(cfg.Audio.SampleRate),
	)

	clientOpts := []realtime.Option{
		realtime.WithModel(cfg.OpenAI.Model),
		realtime.WithInstructions(cfg.OpenAI.Instructions),
		realtime.WithSampleRate(cfg.Audio.SampleRate),
		realtime.WithDialAttempts(cfg.OpenAI.DialAttempts),
		realtime.WithDialBackoff(
			time.Duration(cfg.OpenAI.DialBackoffMs)*time.Millisecond,
			time.Duration(cfg.OpenAI.MaxDialBackoffMs)*time.Millisecond,
		),
		realtime.WithQueueSize(cfg.OpenAI.SendQueueSize),
		realtime.WithStats(kpi),
	}
	if cfg.OpenAI.BaseURL != "" {
		clientOpts = append(clientOpts, realtime.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	client := realtime.NewClient(cfg.OpenAI.APIKey, broadcaster, clientOpts...)

	pipe := pipeline.New(pipeline.Config{
		Selector: selector,
		Catalog:  catalog,
		Streamer: decoder,
		Dialer: pipeline.DialerFunc(func(ctx context.Context) (pipeline.Conn, error) {
			return client.Connect(ctx)
		}),
		Stats:          kpi,
		SampleRate:     cfg.Audio.SampleRate,
		BatchInterval:  time.Duration(cfg.Pipeline.BatchMs) * time.Millisecond,
		Checkpoint:     time.Duration(cfg.Pipeline.CheckpointSeconds) * time.Second,
		ResponseWindow: time.Duration(cfg.Pipeline.ResponseSeconds) * time.Second,
		PollInterval:   time.Duration(cfg.Pipeline.PollMs) * time.Millisecond,
		RestartPause:   time.Duration(cfg.Pipeline.RestartPauseMs) * time.Millisecond,
	})

	// ── HTTP surface ──────────────────────────────────────────────────────────
	checks := health.New(
		health.Checker{Name: "ffmpeg", Check: func(context.Context) error {
			_, err := exec.LookPath(cfg.Audio.FFmpegPath)
			return err
		}},
		health.Checker{Name: "stations", Check: func(context.Context) error {
			if catalog.Len() == 0 {
				return errors.New("station catalog is empty")
			}
			return nil
		}},
		health.Checker{Name: "broadcast", Check: func(context.Context) error {
			if broadcaster.Closed() {
				return errors.New("broadcaster is closed")
			}
			return nil
		}},
	)

	srv := server.New(server.Config{
		Catalog:     catalog,
		Selector:    selector,
		Broadcaster: broadcaster,
		Stats:       kpi,
		Metrics:     metrics,
		Health:      checks,
	})
	httpSrv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: srv.Router(),
	}

	printStartupSummary(cfg, catalog.Len())
	slog.Info("server ready — press Ctrl+C to shut down")

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return pipe.Run(gctx)
	})

	g.Go(func() error {
		err := httpSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		ticker := time.NewTicker(kpiLogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				snap := kpi.Snapshot()
				slog.Info("pipeline kpi",
					"frames", snap.Frames,
					"bytes", snap.Bytes,
					"commits", snap.Commits,
					"responses", snap.Responses,
					"deltas", snap.Deltas,
					"first_delta_p50_ms", snap.FirstDelta.P50Millis,
					"full_response_p50_ms", snap.FullResponse.P50Millis,
					"subscribers", broadcaster.Len(),
				)
			case <-gctx.Done():
				return nil
			}
		}
	})

	// Drain HTTP once the group context ends so in-flight SSE streams and
	// requests terminate before the broadcaster closes.
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	exitCode := 0
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exitCode = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutting down…")
	broadcaster.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}

	slog.Info("goodbye")
	return exitCode
}

// applyReload pushes hot-reloadable config changes into the running process.
// Anything else (model, credentials, listen address) requires a restart.
func applyReload(diff config.DiffResult, cfg *config.Config, logLevel *slog.LevelVar, catalog *source.Catalog) {
	if diff.LogLevelChanged {
		logLevel.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.StationsChanged {
		catalog.Replace(stationsFromConfig(cfg.Stations))
		for _, ch := range diff.StationChanges {
			slog.Info("station catalog changed",
				"station", ch.ID, "added", ch.Added, "removed", ch.Removed,
				"url_changed", ch.URLChanged, "name_changed", ch.NameChanged)
		}
	}
}

// stationsFromConfig converts the config station list into catalog entries.
func stationsFromConfig(stations []config.StationConfig) []source.Station {
	out := make([]source.Station, len(stations))
	for i, st := range stations {
		out[i] = source.Station{
			ID:   source.StationID(st.ID),
			Name: st.Name,
			URL:  st.URL,
		}
	}
	return out
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, stations int) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         aircheck — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Model", cfg.OpenAI.Model)
	if cfg.OpenAI.APIKey != "" {
		printRow("API key", "configured")
	} else {
		printRow("API key", "(missing)")
	}
	printRow("Sample rate", fmt.Sprintf("%d Hz", cfg.Audio.SampleRate))
	printRow("Stations", fmt.Sprintf("%d", stations))
	printRow("Response window", fmt.Sprintf("%ds / commit %ds", cfg.Pipeline.ResponseSeconds, cfg.Pipeline.CheckpointSeconds))
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
