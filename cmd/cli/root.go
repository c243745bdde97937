// Package cli provides the labscan command-line interface: the scan backend
// and dashboard server, a terminal scan client and version information.
package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/anstrom/labscan/internal/config"
	"github.com/anstrom/labscan/internal/logging"
)

// envPrefix namespaces environment overrides, e.g. LABSCAN_API_PORT.
const envPrefix = "LABSCAN"

var (
	cfgFile string
	verbose bool
)

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "labscan",
	Short: "Lab-safe reconnaissance dashboard",
	Long: `labscan runs a fixed, non-intrusive nmap profile against a single
configured lab host and explains the results: which services are exposed,
what role the host likely plays and which lab-safe steps to take next.`,
	Version:       getVersion(),
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind verbose flag: %v\n", err)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	bindEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}

	initLogging()
}

// bindEnv makes every viper key readable from LABSCAN_* variables.
func bindEnv() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// overrides maps viper keys onto config fields. A key applies only when set
// by a flag, the environment or the config file.
var overrides = map[string]func(cfg *config.Config){
	"lab.target":      func(cfg *config.Config) { cfg.Lab.Target = viper.GetString("lab.target") },
	"lab.top_ports":   func(cfg *config.Config) { cfg.Lab.TopPorts = viper.GetInt("lab.top_ports") },
	"lab.binary_path": func(cfg *config.Config) { cfg.Lab.BinaryPath = viper.GetString("lab.binary_path") },
	"lab.schedule":    func(cfg *config.Config) { cfg.Lab.Schedule = viper.GetString("lab.schedule") },
	"api.host":        func(cfg *config.Config) { cfg.API.Host = viper.GetString("api.host") },
	"api.port":        func(cfg *config.Config) { cfg.API.Port = viper.GetInt("api.port") },
	"client.base_url": func(cfg *config.Config) { cfg.Client.BaseURL = viper.GetString("client.base_url") },
	"client.timeout":  func(cfg *config.Config) { cfg.Client.Timeout = viper.GetDuration("client.timeout") },
	"logging.level":   func(cfg *config.Config) { cfg.Logging.Level = viper.GetString("logging.level") },
	"logging.format":  func(cfg *config.Config) { cfg.Logging.Format = viper.GetString("logging.format") },
}

// loadConfig loads the config file and applies flag and environment
// overrides on top of it. The lab target resolves as --target, then
// LAB_TARGET, then LABSCAN_LAB_TARGET, then the config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.ConfigFileUsed())
	if err != nil {
		return nil, err
	}

	for key, apply := range overrides {
		if viper.IsSet(key) {
			apply(cfg)
		}
	}
	if !serveCmd.Flags().Changed("target") {
		cfg.ApplyEnv()
	}
	if viper.GetBool("verbose") {
		cfg.Logging.Level = string(logging.LevelDebug)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
}

// initLogging initializes structured logging based on configuration.
func initLogging() {
	cfg, err := loadConfig()
	if err != nil {
		logging.SetDefault(logging.NewDefault())
		return
	}

	logger, err := logging.New(loggingConfig(cfg))
	if err != nil {
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	logging.SetDefault(logger)

	if verbose {
		logging.Info("Structured logging initialized", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	}
}

// loggingConfig converts the config file's logging section.
func loggingConfig(cfg *config.Config) logging.Config {
	return logging.Config{
		Level:     logging.LogLevel(cfg.Logging.Level),
		Format:    logging.LogFormat(cfg.Logging.Format),
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.Level == string(logging.LevelDebug),
		Rotation: logging.RotationConfig{
			Enabled:    cfg.Logging.Rotation.Enabled,
			MaxSizeMB:  cfg.Logging.Rotation.MaxSizeMB,
			MaxBackups: cfg.Logging.Rotation.MaxBackups,
			MaxAgeDays: cfg.Logging.Rotation.MaxAgeDays,
			Compress:   cfg.Logging.Rotation.Compress,
		},
	}
}

// bindFlag binds a flag to a viper key.
func bindFlag(flags *pflag.FlagSet, key, name string) {
	if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind %s flag: %v\n", name, err)
	}
}

// durationOrNone formats a timeout where zero means unbounded.
func durationOrNone(d time.Duration) string {
	if d <= 0 {
		return "none"
	}
	return d.String()
}
