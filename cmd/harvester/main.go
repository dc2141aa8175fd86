package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/harvestbot/harvester/internal/api"
	"github.com/harvestbot/harvester/internal/bot"
	"github.com/harvestbot/harvester/internal/config"
	"github.com/harvestbot/harvester/internal/dispatcher"
	"github.com/harvestbot/harvester/internal/influx"
	"github.com/harvestbot/harvester/internal/logging"
	"github.com/harvestbot/harvester/internal/monitor"
	intOtel "github.com/harvestbot/harvester/internal/otel"
	"github.com/harvestbot/harvester/internal/storage"
	"github.com/harvestbot/harvester/internal/strategy"
	"github.com/harvestbot/harvester/internal/transport"
	"github.com/harvestbot/harvester/internal/transport/httpapi"
	"github.com/harvestbot/harvester/internal/transport/line"
	"github.com/harvestbot/harvester/internal/transport/script"
	"github.com/harvestbot/harvester/internal/worker"
)

// module defs - Version and BuildDate can be set at build time via ldflags
var (
	Version   string = "0.1.0"
	BuildDate string = "unknown"

	AppName string = "harvester"
)

var (
	SessionStartTime = time.Now()

	SlogManager *logging.SlogManager
	Logger      *slog.Logger
	Zerolog     zerolog.Logger

	LogFile      *os.File
	OTelProvider *intOtel.Provider
	GelfCloser   io.Closer
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// bootstrap logger until the config is read; stdout belongs to the line protocol
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(os.Stderr, nil, "info", nil, nil)
	Logger = SlogManager.Logger()

	configDir := os.Getenv("HARVESTER_CONFIG_DIR")
	if configDir == "" {
		configDir = "."
	}
	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", configDir)
	}

	cmd := "run"
	if len(args) > 0 {
		cmd = strings.ToLower(args[0])
	}

	switch cmd {
	case "version":
		fmt.Printf("%s %s (built %s)\n", AppName, Version, BuildDate)
		return 0
	case "migrate-dumps":
		setupLogging()
		defer closeLogging()
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "No dump directory provided.")
			return 2
		}
		if err := migrateDumps(args[1]); err != nil {
			Logger.Error("Migration failed", "error", err)
			return 1
		}
		return 0
	case "run":
		setupLogging()
		defer closeLogging()
		return runBot()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want run, migrate-dumps or version)\n", cmd)
		return 2
	}
}

// setupLogging wires console, file, graylog and OTel outputs into both loggers.
func setupLogging() {
	logsDir := viper.GetString("logsDir")
	level := viper.GetString("logLevel")

	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		Logger.Error("Failed to create logs dir", "error", err, "path", logsDir)
	}

	logPath := logging.LogFilePath(logsDir, AppName, SessionStartTime)
	var err error
	LogFile, err = os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", logPath)
		LogFile = nil
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var otelWriter io.Writer
		if LogFile != nil {
			otelWriter = LogFile
		}
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			Version:        Version,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      otelWriter,
			MetricWriter:   otelWriter,
			MetricInterval: otelCfg.MetricInterval,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
			OTelProvider = nil
		} else {
			// dispatcher instruments come from the global meter
			OTelProvider.InstallGlobal()
		}
	}

	var gelfWriter io.Writer
	graylogCfg := config.GetGraylogConfig()
	if graylogCfg.Enabled {
		w, err := logging.NewGelfWriter(graylogCfg.Address, AppName)
		if err != nil {
			Logger.Error("Failed to connect to graylog", "error", err, "address", graylogCfg.Address)
		} else {
			gelfWriter = w
			GelfCloser = w
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}

	var fileWriter io.Writer
	if LogFile != nil {
		fileWriter = LogFile
	}
	SlogManager.Setup(os.Stderr, fileWriter, level, gelfWriter, otelLogProvider)
	Logger = SlogManager.Logger()
	Zerolog = logging.NewZerolog(os.Stderr, fileWriter, level)

	Logger.Info("Logging to file", "path", logPath, "version", Version)
}

func closeLogging() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "flushing logs: %v\n", err)
	}
	if OTelProvider != nil {
		_ = OTelProvider.Shutdown(ctx)
	}
	if GelfCloser != nil {
		_ = GelfCloser.Close()
	}
	if LogFile != nil {
		_ = LogFile.Close()
	}
}

func openTransport(cfg config.TransportConfig, logger *slog.Logger) (transport.Transport, error) {
	switch cfg.Type {
	case "", "line":
		return line.New(os.Stdin, os.Stdout, logger), nil
	case "http":
		return httpapi.New(cfg.HTTP.ServerURL, cfg.HTTP.Token, cfg.HTTP.Timeout), nil
	case "script":
		s, err := script.Load(cfg.Script.Path)
		if err != nil {
			return nil, err
		}
		return script.New(s, logger), nil
	default:
		return nil, fmt.Errorf("unknown transport type: %s", cfg.Type)
	}
}

func newEngine(cfg config.BotConfig, logger *slog.Logger) (*strategy.Engine, error) {
	mode, err := strategy.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	opts := []strategy.Option{
		strategy.WithInterval(cfg.IntervalMs),
		strategy.WithMode(mode),
		strategy.WithHoldOccupied(cfg.HoldOccupied),
		strategy.WithLogger(logger.With("component", "strategy")),
	}
	if OTelProvider != nil {
		opts = append(opts, strategy.WithMeter(OTelProvider.Meter("github.com/harvestbot/harvester/internal/strategy")))
	}
	if cfg.JitterMax > 0 {
		seed := cfg.JitterSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		Logger.Info("Score jitter enabled", "max", cfg.JitterMax, "seed", seed)
		opts = append(opts, strategy.WithJitter(rand.New(rand.NewSource(seed)), cfg.JitterMax))
	}
	return strategy.NewEngine(opts...)
}

func runBot() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	botCfg := config.GetBotConfig()

	tr, err := openTransport(config.GetTransportConfig(), Logger.With("component", "transport"))
	if err != nil {
		Logger.Error("Failed to open transport", "error", err)
		return 1
	}
	defer tr.Close()

	engine, err := newEngine(botCfg, Logger)
	if err != nil {
		Logger.Error("Failed to create engine", "error", err)
		return 1
	}

	eventDispatcher, err := dispatcher.New(logging.NewDispatcherLogger(Zerolog))
	if err != nil {
		Logger.Error("Failed to create dispatcher", "error", err)
		return 1
	}

	rec := startRecording(ctx, eventDispatcher)
	defer rec.close()

	b, err := bot.New(bot.Dependencies{
		Transport:      tr,
		Engine:         engine,
		Publisher:      eventDispatcher,
		Logger:         Logger.With("component", "bot"),
		Interval:       time.Duration(botCfg.IntervalMs) * time.Millisecond,
		QueryResources: botCfg.QueryResources,
		MaxTicks:       botCfg.MaxTicks,
	})
	if err != nil {
		Logger.Error("Failed to create bot", "error", err)
		return 1
	}
	rec.bot = b
	SlogManager.SetSession(b)
	defer SlogManager.SetSession(nil)

	err = b.Run(ctx)

	// drain buffered recording before the sinks close
	eventDispatcher.Close()

	switch {
	case err == nil:
		Logger.Info("Session finished", "ticks", b.Ticks())
		return 0
	case errors.Is(err, transport.ErrClosed):
		Logger.Info("Driver closed the session", "ticks", b.Ticks())
		return 0
	case errors.Is(err, context.Canceled):
		Logger.Info("Interrupted", "ticks", b.Ticks())
		return 0
	default:
		Logger.Error("Session failed", "error", err, "ticks", b.Ticks())
		return 1
	}
}

// recording holds the side-channel sinks so they can be closed in order.
type recording struct {
	bot     *bot.Bot
	backend storage.Backend
	influx  *influx.Manager
	monitor *monitor.Service
}

// startRecording builds the configured sinks and registers them with d.
// Failures disable the failing sink; they never stop the bot.
func startRecording(ctx context.Context, d *dispatcher.Dispatcher) *recording {
	rec := &recording{}
	deps := worker.Dependencies{Logger: Logger.With("component", "worker")}

	backend, err := storage.NewBackend(config.GetStorageConfig(), Logger)
	if err != nil {
		Logger.Error("Failed to create storage backend", "error", err)
	} else if backend != nil {
		if err := backend.Init(); err != nil {
			Logger.Error("Failed to initialize storage backend", "error", err)
		} else {
			rec.backend = backend
			Logger.Info("Storage backend initialized", "type", config.GetStorageConfig().Type)
		}
	}

	influxCfg := config.GetInfluxConfig()
	if influxCfg.Enabled {
		backupPath := filepath.Join(viper.GetString("logsDir"),
			fmt.Sprintf("influx_backup_%s.log.gz", SessionStartTime.Format("20060102_150405")))
		m := influx.NewManager(influxCfg, Zerolog.With().Str("component", "influx").Logger(), backupPath)
		if err := m.Connect(ctx); err != nil {
			Logger.Error("Failed to set up InfluxDB", "error", err)
		} else {
			rec.influx = m
			deps.Metrics = m
		}
	}

	var workerManager *worker.Manager
	monitorCfg := config.GetMonitorConfig()
	if monitorCfg.Enabled {
		rec.monitor = monitor.NewService(monitor.Dependencies{
			Logger:     Logger.With("component", "monitor"),
			Address:    monitorCfg.Address,
			StatusFile: filepath.Join(viper.GetString("logsDir"), "status.json"),
			QueueLen:   func() int { return workerManager.Pending() },
		})
		deps.Status = rec.monitor
	}

	workerManager = worker.NewManager(deps, rec.backend)
	workerManager.RegisterHandlers(d)

	if rec.monitor != nil {
		if err := rec.monitor.Start(); err != nil {
			Logger.Error("Failed to start status monitor", "error", err)
		}
	}
	return rec
}

func (r *recording) close() {
	if r.backend != nil {
		if err := r.backend.Close(); err != nil {
			Logger.Error("Failed to close storage backend", "error", err)
		}
		if e, ok := r.backend.(storage.Exportable); ok && e.GetExportedFilePath() != "" {
			Logger.Info("Session exported", "path", e.GetExportedFilePath())
			r.upload(e.GetExportedFilePath())
		}
	}
	if r.influx != nil {
		if err := r.influx.Close(); err != nil {
			Logger.Error("Failed to close InfluxDB", "error", err)
		}
	}
	if r.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.monitor.Stop(ctx); err != nil {
			Logger.Error("Failed to stop status monitor", "error", err)
		}
	}
}

// upload sends the exported session file to the results server when configured.
func (r *recording) upload(path string) {
	cfg := config.GetUploadConfig()
	if !cfg.Enabled || r.bot == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client := api.New(cfg.URL, cfg.APIKey)
	if err := client.Healthcheck(ctx); err != nil {
		Logger.Error("Results server unreachable, keeping local file", "error", err, "path", path)
		return
	}

	sess := r.bot.Session()
	err := client.Upload(ctx, path, api.Metadata{
		SessionID: sess.ID,
		Transport: sess.Transport,
		Mode:      sess.Mode,
		Ticks:     r.bot.Ticks(),
	})
	if err != nil {
		Logger.Error("Failed to upload session", "error", err, "path", path)
		return
	}
	Logger.Info("Session uploaded", "session", sess.ID, "url", cfg.URL)
}
