// Command edenfsd is the thin CLI entrypoint wiring config, logging,
// and telemetry together, following gcsfuse's cmd/root.go
// (cobra.Command + persistent flags). The flags are plain cobra flags,
// not bound through viper. No mount is started: after the config,
// logging, and metrics setup, run returns an error naming the missing
// Backend.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edenfs/kernelchannel/config"
	"github.com/edenfs/kernelchannel/internal/elog"
	"github.com/edenfs/kernelchannel/internal/telemetry"
)

var (
	systemConfigFile string
	userConfigFile   string
	logFile          string
	debugLogging     bool
	metricsAddr      string
)

var rootCmd = &cobra.Command{
	Use:   "edenfsd MOUNT_PATH",
	Short: "Serve a virtual filesystem mount backed by the kernel-channel core.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&systemConfigFile, "system-config", "/etc/eden/edenfs.toml", "path to the system config file")
	rootCmd.PersistentFlags().StringVar(&userConfigFile, "user-config", "", "path to the user config file (defaults to ${HOME}/.edenfsrc)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "path to the log file (empty means stderr)")
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "enable debug-level logging")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (empty disables)")
}

func run(mountPath string) error {
	logger := elog.New(elog.Options{FilePath: logFile, Debug: debugLogging, MaxSizeMB: 100, MaxBackups: 5})
	defer logger.Sync()

	loader := &config.Loader{}
	userFile := userConfigFile
	if userFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			userFile = home + "/.edenfsrc"
		}
	}
	cfg, err := loader.Load(systemConfigFile, userFile, nil)
	if err != nil {
		logger.Warn("config load error; continuing with defaults", zap.Error(err))
	}

	metrics := telemetry.NewMetrics()
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		if err := metrics.Register(reg); err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Error("metrics server exited", zap.Error(err))
			}
		}()
	}

	logger.Info("starting mount",
		zap.String("mount_path", mountPath),
		zap.String("eden_dir", cfg.EdenDir),
	)

	// Acquiring the kernel device fd and constructing the Backend is a
	// privileged, per-deployment concern (see the privhelper package);
	// wiring a concrete Backend implementation here is outside this
	// module's scope.
	return fmt.Errorf("edenfsd: no Backend wired for %q; this binary demonstrates CLI/config/telemetry wiring only", mountPath)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
