package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/authtail/authtail/internal/adapters/detection"
	"github.com/authtail/authtail/internal/adapters/httpapi"
	"github.com/authtail/authtail/internal/adapters/input"
	"github.com/authtail/authtail/internal/adapters/natsio"
	"github.com/authtail/authtail/internal/adapters/output"
	"github.com/authtail/authtail/internal/adapters/store"
	"github.com/authtail/authtail/internal/app"
	"github.com/authtail/authtail/internal/domain"
	"github.com/authtail/authtail/internal/ports"
)

var (
	cfgFile   string
	rulesFile string
	logFile   string
	jsonOut   bool
	demoMode  bool
	demoRate  int

	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "authtail",
	Short: "Live SSH auth-log threat streaming",
	Long: `Authtail follows a remote auth log over SSH, classifies each line
against an ordered signature library, and fans classified events out to
live viewers over a server-sent event stream.

Components:
  - Remote line source: SSH tail with reconnect and backoff
  - Signature matcher: ordered first-match-wins threat rules
  - Broadcast hub: per-connection subscriptions, slow-viewer eviction
  - Trend aggregator: hourly event/volume buckets for dashboards`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hub and streaming endpoint",
	Long: `Start the broadcast hub and the HTTP streaming endpoint, with an
optional embedded monitor feeding it.

Examples:
  authtail serve --demo
  authtail serve --file /var/log/auth.log
  AUTHTAIL_SSH_HOST=bastion AUTHTAIL_SSH_USER=ops AUTHTAIL_SSH_PASSWORD=... authtail serve`,
	RunE: runServe,
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run a standalone monitor forwarding to a hub",
	Long: `Run the remote line source and matcher in their own process,
forwarding classified events to a serve process over NATS, or to stdout
as JSON when no NATS URL is configured.`,
	RunE: runMonitor,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("authtail %s\n", Version)
		fmt.Printf("Commit:  %s\n", Commit)
		fmt.Printf("Built:   %s\n", BuildTime)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&rulesFile, "rules", "", "YAML signature rules file")
	rootCmd.PersistentFlags().StringVarP(&logFile, "file", "f", "", "tail a local log file instead of SSH")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "write classified events as JSON to stdout")
	rootCmd.PersistentFlags().BoolVar(&demoMode, "demo", false, "demo mode: generate synthetic auth lines")
	rootCmd.PersistentFlags().IntVar(&demoRate, "demo-rate", 10, "demo mode: lines per second")

	viper.BindPFlag("rules.file", rootCmd.PersistentFlags().Lookup("rules"))
	viper.BindPFlag("source.file", rootCmd.PersistentFlags().Lookup("file"))
	viper.BindPFlag("output.json.enabled", rootCmd.PersistentFlags().Lookup("json"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/authtail")
	}

	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("hub.buffer", app.DefaultSubscriberBuffer)
	viper.SetDefault("source.buffer_size", 1000)
	viper.SetDefault("ssh.port", 22)
	viper.SetDefault("ssh.log_path", "/var/log/auth.log")
	viper.SetDefault("store.capacity", 1000)
	viper.SetDefault("trend.table", "live_logs")
	viper.SetDefault("nats.subject", natsio.DefaultSubject)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn().Err(err).Msg("Error reading config file")
		}
	}

	viper.SetEnvPrefix("AUTHTAIL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	switch viper.GetString("logging.level") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}

func sshConfigFromViper() input.SSHConfig {
	return input.SSHConfig{
		Host:           viper.GetString("ssh.host"),
		Port:           viper.GetInt("ssh.port"),
		User:           viper.GetString("ssh.user"),
		Password:       viper.GetString("ssh.password"),
		KeyFile:        viper.GetString("ssh.key_file"),
		LogPath:        viper.GetString("ssh.log_path"),
		ConnectTimeout: 10 * time.Second,
		Backoff:        5 * time.Second,
		BufferSize:     viper.GetInt("source.buffer_size"),
	}
}

// buildSource picks the line source: demo, local file, or SSH. A nil
// source with nil error means serve runs endpoint-only.
func buildSource() (ports.LineSource, string, httpapi.StatusFunc, error) {
	if demoMode {
		src := input.NewDemoSource(input.DemoConfig{
			Rate:       demoRate,
			BufferSize: viper.GetInt("source.buffer_size"),
		})
		return src, "DEMO", nil, nil
	}

	if path := viper.GetString("source.file"); path != "" {
		src := input.NewFileSource(path, viper.GetInt("source.buffer_size"))
		return src, filepath.Base(path), nil, nil
	}

	if viper.GetString("ssh.host") == "" {
		return nil, "", nil, nil
	}

	cfg := sshConfigFromViper()
	src, err := input.NewSSHSource(cfg)
	if err != nil {
		return nil, "", nil, err
	}
	origin := fmt.Sprintf("%s@%s", cfg.User, cfg.Host)
	status := func() httpapi.MonitorStatus {
		st := httpapi.MonitorStatus{State: string(src.State())}
		if since := src.ConnectedSince(); !since.IsZero() {
			st.ConnectedSince = &since
		}
		return st
	}
	return src, origin, status, nil
}

func buildMatcher() (*detection.SignatureMatcher, *detection.RuleWatcher, error) {
	path := viper.GetString("rules.file")
	if path == "" {
		return detection.NewSignatureMatcher(nil), nil, nil
	}

	rules, err := detection.LoadRulesFile(path)
	if err != nil {
		return nil, nil, err
	}
	matcher := detection.NewSignatureMatcher(rules)
	watcher, err := detection.NewRuleWatcher(path, matcher)
	if err != nil {
		log.Warn().Err(err).Msg("Rule hot-reload unavailable")
		return matcher, nil, nil
	}
	return matcher, watcher, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	setupLogging()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metrics := domain.NewPipelineMetrics()
	hub := app.NewHub(viper.GetInt("hub.buffer"))
	hub.OnCountChange(metrics.SetSubscribers)

	memStore := store.NewMemoryStore(viper.GetInt("store.capacity"), 0)
	prom := output.NewPrometheusMetrics("authtail", metrics, hub)

	sinks := []ports.EventSink{hub, memStore, prom}
	if jsonOut || viper.GetBool("output.json.enabled") {
		jsonSink, err := output.NewJSONSink(output.JSONSinkConfig{Stdout: true})
		if err != nil {
			return fmt.Errorf("create JSON sink: %w", err)
		}
		sinks = append(sinks, jsonSink)
		defer jsonSink.Close()
	}

	matcher, watcher, err := buildMatcher()
	if err != nil {
		return err
	}
	if watcher != nil {
		defer watcher.Stop()
	}

	var trendSource ports.TrendSource = memStore
	if dsn := viper.GetString("trend.postgres_dsn"); dsn != "" {
		pg, err := store.NewPostgresTrendSource(dsn, viper.GetString("trend.table"))
		if err != nil {
			return fmt.Errorf("trend source: %w", err)
		}
		defer pg.Close()
		trendSource = pg
		log.Info().Msg("Trend source: postgres")
	}

	source, origin, status, err := buildSource()
	if err != nil {
		// Configuration fault: the monitor must not start, but the
		// endpoint can still serve ingested events.
		log.Error().Err(err).Msg("Line source misconfigured, serving without monitor")
		source = nil
	}

	var pipeline *app.Pipeline
	if source != nil {
		pipeline = app.NewPipeline(source, matcher, origin, metrics, sinks...)
		if err := pipeline.Start(ctx); err != nil {
			return err
		}
	}

	if url := viper.GetString("nats.url"); url != "" {
		consumer, err := natsio.NewConsumer(url, viper.GetString("nats.subject"), sinks...)
		if err != nil {
			return fmt.Errorf("NATS consumer: %w", err)
		}
		defer consumer.Close()
	}

	server, err := httpapi.NewServer(httpapi.Config{
		Addr:    viper.GetString("http.addr"),
		Hub:     hub,
		Trend:   app.NewTrendService(trendSource),
		Sinks:   sinks,
		Recent:  memStore,
		Monitor: status,
		Metrics: metrics.GetSnapshot,
	})
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}

	log.Info().Str("addr", viper.GetString("http.addr")).Msg("Authtail started")
	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown error")
	}
	if pipeline != nil {
		pipeline.Stop()
	}
	hub.Close()

	log.Info().Msg("Shutdown complete")
	return nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	setupLogging()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	source, origin, _, err := buildSource()
	if err != nil {
		return err
	}
	if source == nil {
		return fmt.Errorf("no line source configured: set ssh.host, --file or --demo")
	}

	matcher, watcher, err := buildMatcher()
	if err != nil {
		return err
	}
	if watcher != nil {
		defer watcher.Stop()
	}

	var sinks []ports.EventSink
	if url := viper.GetString("nats.url"); url != "" {
		pub, err := natsio.NewPublisher(url, viper.GetString("nats.subject"))
		if err != nil {
			return fmt.Errorf("NATS publisher: %w", err)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	} else {
		jsonSink, err := output.NewJSONSink(output.JSONSinkConfig{Stdout: true})
		if err != nil {
			return err
		}
		defer jsonSink.Close()
		sinks = append(sinks, jsonSink)
		log.Info().Msg("No NATS URL configured, writing events to stdout")
	}

	pipeline := app.NewPipeline(source, matcher, origin, nil, sinks...)
	if err := pipeline.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	pipeline.Stop()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
