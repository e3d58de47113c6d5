package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/netbirdio/peerctl/shared/management/client"
	"github.com/netbirdio/peerctl/shared/management/client/config"
	"github.com/netbirdio/peerctl/util"
)

const (
	urlFlag           = "url"
	passwordFlag      = "password"
	timeoutFlag       = "timeout"
	retryAttemptsFlag = "retry-attempts"
	retryDelayFlag    = "retry-delay"
	cacheTTLFlag      = "cache-ttl"
	sessionTTLFlag    = "session-ttl"
	rpsFlag           = "requests-per-second"
	configFlag        = "config"
	devFlag           = "dev"
	outputFlag        = "output"
)

var (
	serviceURL        string
	password          string
	timeout           time.Duration
	retryAttempts     int
	retryDelay        time.Duration
	cacheTTL          time.Duration
	sessionTTL        time.Duration
	requestsPerSecond float64
	configPath        string
	logLevel          string
	logFile           string
	devMode           bool
	outputFormat      string

	rootCmd = &cobra.Command{
		Use:          "peerctl",
		Short:        "manage the peers of a WireGuard management service",
		SilenceUsage: true,
	}

	// newClient is replaced in tests
	newClient = connectClient

	// metricsRegisterer receives the client metrics when set
	metricsRegisterer prometheus.Registerer
)

// Execute executes the root command. SIGINT and SIGTERM cancel the running command.
func Execute() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	SetupCloseHandler(ctx, cancel)
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// assigned here rather than in the literal to avoid an initialization cycle on rootCmd
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		config.LoadEnvFiles()
		util.SetFlagsFromEnvVars(rootCmd)
		if err := util.InitLog(logLevel, logFile); err != nil {
			return fmt.Errorf("failed initializing log %v", err)
		}
		return nil
	}

	rootCmd.PersistentFlags().StringVarP(&serviceURL, urlFlag, "u", "", "service URL [http|https]://[host]:[port]")
	rootCmd.PersistentFlags().StringVarP(&password, passwordFlag, "p", "", "service password")
	rootCmd.PersistentFlags().Var(newDurationFlag(&timeout, config.DefaultTimeout), timeoutFlag, "per request timeout")
	rootCmd.PersistentFlags().IntVar(&retryAttempts, retryAttemptsFlag, config.DefaultRetryAttempts, "attempts per request for network errors, timeouts and 5xx answers")
	rootCmd.PersistentFlags().Var(newDurationFlag(&retryDelay, config.DefaultRetryDelay), retryDelayFlag, "base delay of the linear retry backoff")
	rootCmd.PersistentFlags().Var(newDurationFlag(&cacheTTL, config.DefaultCacheTTL), cacheTTLFlag, "lifetime of the cached peer list, 0 disables caching")
	rootCmd.PersistentFlags().Var(newDurationFlag(&sessionTTL, 0), sessionTTLFlag, "local session lifetime, 0 keeps the session until the service rejects it")
	rootCmd.PersistentFlags().Float64Var(&requestsPerSecond, rpsFlag, 0, "client side request rate limit, 0 disables it")
	rootCmd.PersistentFlags().StringVarP(&configPath, configFlag, "c", "", "JSON config file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "warn", "sets peerctl log level")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "console", "sets peerctl log path. If console is specified the log will be output to stderr")
	rootCmd.PersistentFlags().BoolVar(&devMode, devFlag, false, "run against an in-memory service seeded with sample peers")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, outputFlag, "o", formatTable, "output format: table, json or yaml")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(loginCmd, logoutCmd)
	rootCmd.AddCommand(listCmd, getCmd, createCmd, deleteCmd, renameCmd, setAddressCmd, enableCmd, disableCmd)
	rootCmd.AddCommand(configCmd, qrCmd)
	rootCmd.AddCommand(statsCmd, watchCmd)
}

// SetupCloseHandler handles SIGTERM signal and cancels the command context
func SetupCloseHandler(ctx context.Context, cancel context.CancelFunc) {
	termCh := make(chan os.Signal, 1)
	signal.Notify(termCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(termCh)
		select {
		case <-ctx.Done():
		case <-termCh:
			log.Info("shutdown signal received")
			cancel()
		}
	}()
}

// buildConfig merges, by increasing precedence, defaults, the config file and the flags. Flags
// not given on the command line have already been filled from WG_* variables.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := &config.Config{}
	if configPath != "" {
		fileCfg, err := config.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg.Merge(fileCfg)
	}

	flags := cmd.Flags()
	flagCfg := &config.Config{}
	if flags.Changed(urlFlag) {
		flagCfg.URL = serviceURL
	}
	if flags.Changed(passwordFlag) {
		flagCfg.Password = password
	}
	if flags.Changed(timeoutFlag) {
		flagCfg.Timeout = timeout
	}
	if flags.Changed(retryAttemptsFlag) {
		flagCfg.SetRetryAttempts(retryAttempts)
	}
	if flags.Changed(retryDelayFlag) {
		flagCfg.RetryDelay = retryDelay
	}
	if flags.Changed(cacheTTLFlag) {
		flagCfg.CacheTTL = cacheTTL
		if cacheTTL == 0 {
			// 0 on the command line disables caching instead of selecting the default
			flagCfg.CacheTTL = -1
		}
	}
	if flags.Changed(sessionTTLFlag) {
		flagCfg.SessionTTL = sessionTTL
	}
	if flags.Changed(rpsFlag) {
		flagCfg.RequestsPerSecond = requestsPerSecond
	}
	cfg.Merge(flagCfg)
	cfg.SetDefaults()
	return cfg, nil
}

// connectClient builds the client for the command
func connectClient(cmd *cobra.Command) (client.Client, error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, err
	}

	if devMode {
		return connectDev(cfg, client.WithRegisterer(metricsRegisterer))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Debugf("connecting with %s", cfg)
	return client.New(cfg, client.WithRegisterer(metricsRegisterer))
}

// withClient runs fn with a client and closes it afterwards
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c client.Client) error) error {
	cmd.SetOut(cmd.OutOrStdout())

	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Debugf("failed to close client: %v", err)
		}
	}()

	return fn(cmd.Context(), c)
}
