package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adarwoo/ulogger"
	"github.com/adarwoo/ulogger/internal/logging"
	"github.com/adarwoo/ulogger/internal/symtab"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "ulogger",
	Short: "Decode a firmware's pre-tokenized trace stream",
	Long: `ulogger watches an ELF artifact for its .logs symbol table and decodes
a COBS-framed wire stream from a serial port (or a replayed capture) into
log entries, printed one per line.

Configuration is read from flags, environment variables (ULOGGER_*), and
optionally a config file passed with --config.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml/toml/json)")

	flags.String("artifact-path", "", "ELF file carrying the .logs symbol table (required)")
	flags.String("serial-port", "", "serial device to read frames from, e.g. /dev/ttyACM0")
	flags.Int("serial-baud", 115200, "serial port baud rate (accepted but not applied to the port)")
	flags.Int("id-width", 16, "on-wire log id width in bits (8 or 16)")
	flags.Int("buffer-depth", 100000, "ring buffer capacity, in LogEntry slots")
	flags.Int("dispatch-capacity", 5000, "Events() channel buffer depth")
	flags.Uint32("display-level-threshold", 4, "minimum severity (0=most severe) a line-mode consumer renders")
	flags.Bool("clear-on-reload", true, "clear ring buffer history when the artifact reloads")
	flags.Duration("poll-interval", time.Second, "artifact poll interval")
	flags.Duration("read-timeout", time.Second, "serial read timeout")
	flags.Duration("reopen-backoff", 2*time.Second, "delay between serial port reopen attempts")
	flags.Int("max-reopen-attempts", 5, "consecutive reopen attempts before giving up")
	flags.String("metrics-addr", "", "address to serve /metrics on, e.g. :9110 (disabled if empty)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")

	_ = v.BindPFlags(flags)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	v.SetEnvPrefix("ULOGGER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	logConfig := logging.DefaultConfig()
	if lvl, err := parseLogLevel(v.GetString("log-level")); err == nil {
		logConfig.Level = lvl
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	artifactPath := v.GetString("artifact-path")
	if artifactPath == "" {
		return fmt.Errorf("--artifact-path (or ULOGGER_ARTIFACT_PATH) is required")
	}
	serialPort := v.GetString("serial-port")
	if serialPort == "" {
		return fmt.Errorf("--serial-port (or ULOGGER_SERIAL_PORT) is required")
	}

	idWidth := symtab.IDWidth16
	if v.GetInt("id-width") == 8 {
		idWidth = symtab.IDWidth8
	}

	cfg := ulogger.Config{
		ArtifactPath:          artifactPath,
		SerialPort:            serialPort,
		SerialBaud:            v.GetInt("serial-baud"),
		IDWidth:               idWidth,
		BufferDepth:           v.GetInt("buffer-depth"),
		DispatchCapacity:      v.GetInt("dispatch-capacity"),
		DisplayLevelThreshold: v.GetUint32("display-level-threshold"),
		ClearOnReload:         v.GetBool("clear-on-reload"),
		PollInterval:          v.GetDuration("poll-interval"),
		ReadTimeout:           v.GetDuration("read-timeout"),
		ReopenBackoff:         v.GetDuration("reopen-backoff"),
		MaxReopenAttempts:     v.GetInt("max-reopen-attempts"),
	}

	var registerer prometheus.Registerer
	if addr := v.GetString("metrics-addr"); addr != "" {
		registry := prometheus.NewRegistry()
		registerer = registry
		srv := &http.Server{Addr: addr, Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{})}
		go func() {
			logger.Info("serving metrics", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := ulogger.Open(ctx, cfg, &ulogger.Options{
		Logger:     logger,
		Registerer: registerer,
	})
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	defer session.Close()

	logger.Info("session started", "artifact_path", artifactPath, "serial_port", serialPort)

	go watchStackDumpSignal(logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	threshold := cfg.DisplayLevelThreshold
	for {
		select {
		case ev, ok := <-session.Events():
			if !ok {
				return nil
			}
			printEvent(ev, threshold)
			if ev.Kind == ulogger.EventQuit {
				return nil
			}
		case <-sigCh:
			logger.Info("received shutdown signal")
			cancel()
			return nil
		}
	}
}

// printEvent renders one Event to stdout in line mode. EventLogEntry is
// filtered by threshold (a log entry with no explicit severity above the
// floor is always shown, since Session itself does not filter).
func printEvent(ev ulogger.Event, threshold uint32) {
	switch ev.Kind {
	case ulogger.EventLogEntry:
		if ev.Entry.Site.Level > threshold {
			return
		}
		fmt.Println(renderEntry(ev.Entry))
	case ulogger.EventWaitForArtifact:
		fmt.Printf("# waiting for artifact: %s\n", ev.ArtifactPath)
	case ulogger.EventArtifactOk:
		fmt.Printf("# artifact loaded: %s\n", ev.ArtifactPath)
	case ulogger.EventArtifactFailed:
		fmt.Printf("# artifact load failed: %s: %v\n", ev.ArtifactPath, ev.Err)
	case ulogger.EventArtifactReloaded:
		fmt.Printf("# artifact reloaded: %s\n", ev.ArtifactPath)
	case ulogger.EventBadData:
		if ev.Recovered {
			fmt.Println("# recovered from bad data")
		} else {
			fmt.Println("# bad data detected, discarding until resync")
		}
	case ulogger.EventNote:
		fmt.Printf("# %s\n", ev.Note)
	case ulogger.EventQuit:
		fmt.Println("# session stopped")
	}
}

func parseLogLevel(s string) (logging.LogLevel, error) {
	switch s {
	case "debug":
		return logging.LevelDebug, nil
	case "info":
		return logging.LevelInfo, nil
	case "warn":
		return logging.LevelWarn, nil
	case "error":
		return logging.LevelError, nil
	default:
		return logging.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// watchStackDumpSignal dumps all goroutine stacks to stderr and a file on
// SIGUSR1.
func watchStackDumpSignal(logger *logging.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	for range ch {
		buf := make([]byte, 1024*1024)
		n := runtime.Stack(buf, true)
		fmt.Fprintf(os.Stderr, "\n=== GOROUTINE STACK DUMP ===\n%s\n", buf[:n])

		filename := fmt.Sprintf("ulogger-stacks-%d.txt", os.Getpid())
		if f, err := os.Create(filename); err == nil {
			fmt.Fprintf(f, "Goroutine stack dump, pid %d\n\n", os.Getpid())
			f.Write(buf[:n])
			fmt.Fprintf(f, "\n\n=== GOROUTINE PROFILE ===\n")
			pprof.Lookup("goroutine").WriteTo(f, 2)
			f.Close()
			logger.Info("stack dump written", "file", filename)
		}
	}
}
