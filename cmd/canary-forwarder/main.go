package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/app/logging"
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/pkg/canarybridge"
)

func main() {
	cmd := "run"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "run":
		err = runCommand(args)
	case "validate":
		err = validateCommand(args)
	case "stats":
		err = statsCommand(args)
	case "help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "canary-forwarder %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func runCommand(args []string) error {
	fs := pflag.NewFlagSet("run", pflag.ExitOnError)
	cfgPath := fs.StringP("config", "c", "", "Optional YAML config file; environment variables override it")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := canarybridge.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logs, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Dir:        cfg.Log.Dir,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return err
	}
	defer logs.Close()

	logs.Logger.Info("configuration_loaded",
		"source", cfg.Source.Kind,
		"host", cfg.Source.Host(),
		"dataset", cfg.Source.Dataset,
		"broker", cfg.MQTT.Broker,
		"poll_interval", cfg.Policy.Ports().PollInterval.String(),
		"log_level", cfg.Log.Level)

	rt, err := canarybridge.NewRuntime(cfg, canarybridge.WithLogger(logs.Logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rt.Run(ctx)
}

func validateCommand(args []string) error {
	fs := pflag.NewFlagSet("validate", pflag.ExitOnError)
	cfgPath := fs.StringP("config", "c", "", "Optional YAML config file to validate together with the environment")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := canarybridge.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	fmt.Printf("config ok: %s %s dataset=%s -> %s\n", cfg.Source.Kind, cfg.Source.Host(), cfg.Source.Dataset, cfg.MQTT.Broker)
	return nil
}

func printUsage() {
	fmt.Printf(`Canary to MQTT forwarder

Usage:
  canary-forwarder [command] [flags]

Commands:
  run        Load the tag list and forward live values to the broker (default)
  validate   Load and validate the configuration without connecting
  stats      Poll the Prometheus metrics endpoint and print live counters

Environment:
  Canary_Url       historian host or URL (required)
  Canary_Dataset   dataset root to browse (required)
  Mqtt_Url         broker host or URL (required)
  LOGLEVEL         DEBUG, INFO, WARNING, ERROR or CRITICAL (default INFO)
  WAITTIME         seconds between cycles (default 1)

Examples:
  canary-forwarder run --config ./forwarder.yaml
  canary-forwarder validate
  canary-forwarder stats --url http://localhost:9100/metrics --interval 1s
`)
}
