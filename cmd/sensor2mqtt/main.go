// sensor2mqtt bridges locally attached sensors and relays to MQTT and
// coordinates heating demand across zones that share a heat source.
//
// Usage:
//
//	sensor2mqtt --config /etc/sensor2mqtt/config.yaml [--debug]
//	sensor2mqtt --issue-token grafana --token-ttl 8760h
//
// SIGINT and SIGTERM start a graceful shutdown: every subsystem cleans
// up before the bridge disconnects from the broker.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/sensor2mqtt/internal/api"
	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/sensor2mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/sensor2mqtt/internal/session"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "/etc/sensor2mqtt/config.yaml"

// configEnv names the environment variable that overrides the default
// configuration path. --config wins over it.
const configEnv = "SENSOR2MQTT_CONFIG"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the parsed command line flags.
type options struct {
	configPath  string
	debug       bool
	showVersion bool
	issueToken  string
	tokenTTL    time.Duration
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("sensor2mqtt", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "configuration file (default $"+configEnv+" or "+defaultConfigPath+")")
	fs.BoolVarP(&opts.debug, "debug", "d", false, "log at debug level")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	fs.StringVar(&opts.issueToken, "issue-token", "", "print a status API token for `subject` and exit")
	fs.DurationVar(&opts.tokenTTL, "token-ttl", 24*time.Hour, "lifetime of an issued token")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.configPath == "" {
		opts.configPath = getConfigPath()
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown; a config failure, or
//     session.ErrStopped if asked to exit before the broker answered
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "sensor2mqtt %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.debug {
		cfg.Debug = true
	}
	if cfg.Debug {
		cfg.Logging.Level = "debug"
	}

	if opts.issueToken != "" {
		return printToken(stdout, cfg.API, opts.issueToken, opts.tokenTTL)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting sensor2mqtt",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", opts.configPath,
	)

	host, err := resolveHost(cfg.Host)
	if err != nil {
		return err
	}

	bus := mqtt.New(cfg.MQTT, host)
	bus.SetLogger(log)

	qos := byte(cfg.MQTT.QoS) // #nosec G115 -- validated 0..2
	ctrl, err := session.New(session.Options{
		Bus:           bus,
		Host:          host,
		Logger:        log,
		QoS:           &qos,
		RetryDelay:    cfg.ConnectRetryDelay(),
		HandleSignals: true,
	})
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	log.Info("connecting to MQTT",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", bus.ClientID(),
		"host", host,
	)

	b := &bridge{cfg: cfg, log: log, ctrl: ctrl}
	if err := ctrl.Run(ctx, b.setup); err != nil {
		return fmt.Errorf("running session: %w", err)
	}

	log.Info("sensor2mqtt stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Checks SENSOR2MQTT_CONFIG environment variable first, then uses default.
func getConfigPath() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// resolveHost returns the configured host name or the machine's.
func resolveHost(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("resolving host name: %w", err)
	}
	return host, nil
}

func printToken(w io.Writer, cfg config.APIConfig, subject string, ttl time.Duration) error {
	if cfg.JWTSecret == "" {
		return errors.New("api.jwt_secret is not set; tokens are not required")
	}
	token, err := api.IssueToken(cfg.JWTSecret, subject, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, token)
	return nil
}
