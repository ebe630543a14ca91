// Command sclog is the non-GUI harness for the event and realtime
// coordination core: it tails a Star Citizen game log, turns lines into
// structured events through the pattern engine, and fans them out onto
// the message bus, the dispatch pipeline, and the realtime bridge, per
// SPEC_FULL.md §2 AMBIENT STACK / CLI.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/ijol/sclog-core/internal/bus"
	"github.com/ijol/sclog-core/internal/discord"
	"github.com/ijol/sclog-core/internal/dispatch"
	"github.com/ijol/sclog-core/internal/eventstream"
	"github.com/ijol/sclog-core/internal/patternconfig"
	"github.com/ijol/sclog-core/internal/patterns"
	"github.com/ijol/sclog-core/internal/profile"
	"github.com/ijol/sclog-core/internal/ratelimit"
	"github.com/ijol/sclog-core/internal/realtime"
	"github.com/ijol/sclog-core/internal/realtime/transport"
	"github.com/ijol/sclog-core/internal/state"
	"github.com/ijol/sclog-core/internal/tailer"
	"github.com/ijol/sclog-core/pkg/config"
	"github.com/ijol/sclog-core/pkg/kafka"
	"github.com/ijol/sclog-core/pkg/logging"
	"github.com/ijol/sclog-core/pkg/monitoring"
	"github.com/ijol/sclog-core/pkg/redis"
	"github.com/ijol/sclog-core/pkg/server"
	"github.com/ijol/sclog-core/pkg/version"
)

const serviceName = "sclog"

// cliFlags mirrors spec.md §6's CLI surface. The flag package doesn't
// support combined short/long switches, so each option is registered
// twice (long and short) bound to the same variable, the way the
// original's argparse --flag/-f pairs behave.
type cliFlags struct {
	processAll  bool
	noDiscord   bool
	processOnce bool
	datasource  string
	debug       bool
	showHelp    bool
}

func parseFlags(args []string) (cliFlags, error) {
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	var f cliFlags
	fs.BoolVar(&f.processAll, "process-all", false, "process the entire log file before incremental tailing begins")
	fs.BoolVar(&f.processAll, "p", false, "shorthand for --process-all")
	fs.BoolVar(&f.noDiscord, "no-discord", false, "disable Discord dispatch regardless of configuration")
	fs.BoolVar(&f.noDiscord, "nd", false, "shorthand for --no-discord")
	fs.BoolVar(&f.processOnce, "process-once", false, "read the entire log file once and exit")
	fs.BoolVar(&f.processOnce, "o", false, "shorthand for --process-once")
	fs.StringVar(&f.datasource, "datasource", "", "durable sink provider: googlesheets, supabase, or kafka")
	fs.BoolVar(&f.debug, "debug", false, "enable debug logging and bus debug mode")
	fs.BoolVar(&f.debug, "d", false, "shorthand for --debug")
	fs.BoolVar(&f.showHelp, "help", false, "show this help message")
	fs.BoolVar(&f.showHelp, "h", false, "shorthand for --help")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.showHelp {
		fs.Usage()
	}
	return f, nil
}

func main() {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if flags.showHelp {
		os.Exit(0)
	}

	logger := logging.NewLoggerWithService(serviceName)
	config.LoadEnv(logger)
	if flags.debug {
		logger.SetLevel(logging.DebugLevel)
	}

	logger.WithFields(logging.Fields{
		"version": version.Version,
		"commit":  version.GetShortCommit(),
	}).Info("starting sclog event and realtime coordination core")

	if code := run(context.Background(), flags, logger); code != 0 {
		os.Exit(code)
	}
}

// run wires every subsystem, blocks until SIGINT/SIGTERM, and returns a
// process exit code: 0 on clean stop, non-zero on a fatal startup error.
func run(ctx context.Context, flags cliFlags, logger logging.Logger) int {
	healthChecker := monitoring.NewHealthChecker(serviceName, version.Version)
	metricsCollector := monitoring.NewMetricsCollector(serviceName, version.Version, version.GitCommit)

	logPath := resolveLogPath()
	patternConfigPath := config.GetEnv("PATTERN_CONFIG_PATH", "config/patterns.yaml")
	compiled, err := patternconfig.Load(patternConfigPath)
	if err != nil {
		logger.WithFields(logging.Fields{"error": err, "path": patternConfigPath}).Error("failed to load pattern configuration")
		return 1
	}
	vip := profile.CompileVIPPatterns(compiled.ImportantPlayers)
	if n := vip.InvalidCount(); n > 0 {
		logger.WithFields(logging.Fields{"invalid_count": n}).Warn("some important_players entries failed to compile as regex and were skipped")
	}

	messageBus := bus.New(logger, config.GetEnvInt("BUS_HISTORY_CAP", 10000))
	messageBus.SetDebugMode(flags.debug)
	messageBus.Start()
	defer messageBus.Stop()

	limiter := ratelimit.New(ratelimit.Config{
		Timeout:           time.Duration(config.GetEnvInt("RATE_LIMIT_TIMEOUT_SECONDS", 300)) * time.Second,
		MaxDuplicates:     config.GetEnvInt("RATE_LIMIT_MAX_DUPLICATES", 1),
		CleanupInterval:   5 * time.Minute,
		GlobalLimitCount:  config.GetEnvInt("RATE_LIMIT_GLOBAL_COUNT", 0),
		GlobalLimitWindow: time.Duration(config.GetEnvInt("RATE_LIMIT_GLOBAL_WINDOW_SECONDS", 60)) * time.Second,
	})

	defaultUsername := config.GetEnv("USERNAME", "Unknown")
	stateMachine := state.New(messageBus, defaultUsername)

	engine := patterns.New(compiled)

	tailerCfg := tailer.Config{
		LogPath:        logPath,
		ScreenshotsDir: config.GetEnv("SCREENSHOTS_DIR", ""),
		PollInterval:   time.Duration(config.GetEnvInt("TAILER_POLL_MS", 500)) * time.Millisecond,
		OneShot:        flags.processOnce,
		UseDiscord:     config.GetEnvBool("USE_DISCORD", true) && !flags.noDiscord,
	}
	tail := tailer.New(tailerCfg, messageBus, stateMachine, engine, vip, limiter, logger)

	tail.SetDiscord(buildDiscordSink(stateMachine))

	provider, closeProvider, providerHealth, err := buildDataProvider(selectDatasource(flags.datasource), logger)
	if err != nil {
		logger.WithFields(logging.Fields{"error": err}).Error("failed to initialize dispatch data provider")
		return 1
	}
	if closeProvider != nil {
		defer closeProvider()
	}
	if providerHealth != nil {
		healthChecker.AddCheck("datasource", providerHealth)
	}

	pipeline := dispatch.New(provider, logger, config.GetEnvInt("DISPATCH_QUEUE_CAP", 10000))
	tail.SetDispatcher(pipeline)

	transportManager, closeTransport, transportHealth, err := buildTransportManager(ctx, logger)
	if err != nil {
		logger.WithFields(logging.Fields{"error": err}).Warn("realtime transport unavailable, continuing without peer broadcast")
	}
	if closeTransport != nil {
		defer closeTransport()
	}
	if transportHealth != nil {
		healthChecker.AddCheck("realtime_transport", transportHealth)
	}

	var bridge *realtime.Bridge
	var profileBroadcaster profile.Broadcaster
	if transportManager != nil {
		bridge = realtime.New(messageBus, limiter, transportManager, realtime.Config{
			HeartbeatInterval:    time.Duration(config.GetEnvInt("ACTIVE_USERS_UPDATE_INTERVAL", 30)) * time.Second,
			AutoReconnection:     config.GetEnvBool("AUTO_RECONNECTION", true),
			NotificationsEnabled: config.GetEnvBool("NOTIFICATIONS_ENABLED", true),
			NotificationsEvents:  map[string]bool{},
		}, realtime.DefaultFilters(), logger)
		tail.SetBroadcaster(bridge)
		profileBroadcaster = bridge
	}

	profileManager := profile.New(messageBus, nil, profileBroadcaster, func() string { return stateMachine.Snapshot().Username }, logger)
	tail.SetScraper(profileManager)

	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"LOG_FILE_PATH":       logPath,
		"PATTERN_CONFIG_PATH": patternConfigPath,
	}))

	hub := eventstream.NewHub(logger)
	messageBus.Subscribe("eventstream", func(m bus.Message) {
		payload, err := json.Marshal(m)
		if err != nil {
			return
		}
		hub.Broadcast(payload)
	}, nil, bus.SubscribeOptions{})

	router := server.SetupServiceRouter(logger, serviceName, healthChecker, metricsCollector)
	router.GET("/ws", func(c *gin.Context) { hub.ServeWS(c.Writer, c.Request) })
	serverCfg := server.DefaultConfig(serviceName, config.GetEnv("PORT", "8089"))

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	hubStop := make(chan struct{})
	go hub.Run(hubStop)
	defer close(hubStop)

	pipeline.Start(runCtx)

	if flags.processAll {
		logger.Info("processing entire log file before incremental tailing")
		if err := tail.CatchUp(); err != nil {
			logger.WithFields(logging.Fields{"error": err}).Warn("initial full-log catch-up failed")
		}
	}

	if bridge != nil && defaultUsername != "" && defaultUsername != "Unknown" {
		bridge.Connect(runCtx)
	}

	tailerErrCh := make(chan error, 1)
	go func() {
		tailerErrCh <- tail.Run(runCtx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(serverCfg, router, logger); err != nil {
			logger.WithFields(logging.Fields{"error": err}).Error("health/metrics server stopped with error")
		}
	}()

	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
	case err := <-tailerErrCh:
		if err != nil {
			logger.WithFields(logging.Fields{"error": err}).Error("tailer exited with error")
		} else {
			logger.Info("tailer finished (one-shot mode)")
		}
	}

	cancelRun()
	pipeline.Wait()
	if bridge != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		bridge.Disconnect(disconnectCtx)
		disconnectCancel()
	}

	logger.Info("sclog stopped cleanly")
	return 0
}

// resolveLogPath implements auto_environment_detection: when enabled and
// both a live and PTU log path are configured, the most recently modified
// of the two is tailed; otherwise LOG_FILE_PATH is used verbatim.
func resolveLogPath() string {
	base := config.GetEnv("LOG_FILE_PATH", "Game.log")
	if !config.GetEnvBool("AUTO_ENVIRONMENT_DETECTION", false) {
		return base
	}
	live := config.GetEnv("LIVE_LOG_PATH", "")
	ptu := config.GetEnv("PTU_LOG_PATH", "")
	if live == "" || ptu == "" {
		return base
	}
	return newerOf(live, ptu)
}

func newerOf(a, b string) string {
	ai, aErr := os.Stat(a)
	bi, bErr := os.Stat(b)
	switch {
	case aErr != nil && bErr != nil:
		return a
	case aErr != nil:
		return b
	case bErr != nil:
		return a
	case bi.ModTime().After(ai.ModTime()):
		return b
	default:
		return a
	}
}

// selectDatasource resolves the provider choice with CLI flag precedence
// over the DATASOURCE env var, per spec.md §6 ("datasource ∈
// {googlesheets, supabase}"); "kafka" is an additional provider this
// domain stack offers per SPEC_FULL.md §3/§7 SUPPLEMENT.
func selectDatasource(flagValue string) string {
	if flagValue != "" {
		return strings.ToLower(flagValue)
	}
	return strings.ToLower(config.GetEnv("DATASOURCE", "googlesheets"))
}

func buildDiscordSink(stateMachine *state.Machine) discord.ModeAwareSink {
	router := discord.Router{
		Default: discord.NewWebhook(config.GetEnv("DISCORD_WEBHOOK_URL", "")),
	}
	if url := config.GetEnv("LIVE_DISCORD_WEBHOOK", ""); url != "" {
		router.Live = discord.NewWebhook(url)
	}
	if url := config.GetEnv("AC_DISCORD_WEBHOOK", ""); url != "" {
		router.AC = discord.NewWebhook(url)
	}
	if url := config.GetEnv("TECHNICAL_WEBHOOK_URL", ""); url != "" {
		router.Technical = discord.NewWebhook(url)
	}
	return discord.ModeAwareSink{
		Router:      router,
		CurrentMode: func() string { return stateMachine.Snapshot().CurrentMode },
	}
}

// buildDataProvider constructs the dispatch.DataProvider selected by
// datasource. The returned closer (if non-nil) releases underlying
// connections on shutdown; the returned health check (if non-nil) is
// registered on the /health endpoint.
func buildDataProvider(datasource string, logger logging.Logger) (dispatch.DataProvider, func(), func() monitoring.CheckResult, error) {
	switch datasource {
	case "supabase":
		dsn := config.GetEnv("SUPABASE_DB_DSN", "")
		if dsn == "" {
			logger.Warn("SUPABASE_DB_DSN not set; supabase datasource will report unhealthy")
		}
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open supabase connection: %w", err)
		}
		provider := dispatch.NewSupabaseDataProvider(db)
		health := func() monitoring.CheckResult {
			if err := db.Ping(); err != nil {
				return monitoring.CheckResult{Status: monitoring.StatusUnhealthy, Message: err.Error()}
			}
			return monitoring.CheckResult{Status: monitoring.StatusHealthy}
		}
		return provider, func() { _ = db.Close() }, health, nil
	case "kafka":
		brokers := strings.Split(config.GetEnv("KAFKA_BROKERS", "localhost:9092"), ",")
		clusterID := config.GetEnv("KAFKA_CLUSTER_ID", serviceName)
		producer, err := kafka.NewKafkaProducer(brokers, clusterID, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
		}
		provider := dispatch.NewKafkaDataProvider(producer, serviceName)
		health := func() monitoring.CheckResult {
			if err := producer.HealthCheck(); err != nil {
				return monitoring.CheckResult{Status: monitoring.StatusUnhealthy, Message: err.Error()}
			}
			return monitoring.CheckResult{Status: monitoring.StatusHealthy}
		}
		return provider, func() { _ = producer.Close() }, health, nil
	default:
		webhookURL := config.GetEnv("GOOGLE_SHEETS_WEBHOOK", "")
		provider := dispatch.NewGoogleSheetsDataProvider(webhookURL)
		health := func() monitoring.CheckResult {
			if !provider.IsConnected() {
				return monitoring.CheckResult{Status: monitoring.StatusDegraded, Message: "no webhook configured"}
			}
			return monitoring.CheckResult{Status: monitoring.StatusHealthy}
		}
		return provider, nil, health, nil
	}
}

// buildTransportManager connects to Redis and wraps it as the realtime
// bridge's transport, per SPEC_FULL.md §3's domain-stack wiring of
// go-redis/pkg-redis as the multi-peer "general" channel fan-out. A
// connection failure is non-fatal: the bridge is simply not constructed
// and the rest of the application runs without peer broadcast.
func buildTransportManager(ctx context.Context, logger logging.Logger) (realtime.TransportManager, func(), func() monitoring.CheckResult, error) {
	redisURL := config.GetEnv("REDIS_URL", "")
	if redisURL == "" {
		return nil, nil, nil, fmt.Errorf("REDIS_URL not configured")
	}
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := redis.NewClientFromURL(connectCtx, redisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	manager := transport.NewManager(client, logger)
	health := func() monitoring.CheckResult {
		if err := client.Ping(context.Background()).Err(); err != nil {
			return monitoring.CheckResult{Status: monitoring.StatusUnhealthy, Message: err.Error()}
		}
		return monitoring.CheckResult{Status: monitoring.StatusHealthy}
	}
	return realtime.NewTransportManager(manager), func() { _ = client.Close() }, health, nil
}
