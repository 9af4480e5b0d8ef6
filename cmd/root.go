package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperledger-labs/interop-relayer/config"
	"github.com/hyperledger-labs/interop-relayer/internal/telemetry"
	"github.com/hyperledger-labs/interop-relayer/log"
	"github.com/hyperledger-labs/interop-relayer/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	appName    = "irly"
	configPath = "config/config.json"
)

var (
	homePath    string
	defaultHome = os.ExpandEnv("$HOME/.irly")
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd returns the root command with every subcommand attached
func NewRootCmd() *cobra.Command {
	// rootCmd represents the base command when called without any subcommands
	var rootCmd = &cobra.Command{
		Use:   appName,
		Short: "This application relays interop bundles between configured chains",
	}

	cobra.EnableCommandSorting = false
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	ctx := &config.Context{}
	var otelShutdown func(context.Context) error

	// Register top level flags --home and the logging flags
	rootCmd.PersistentFlags().StringVar(&homePath, flagHome, defaultHome, "set home directory")
	rootCmd.PersistentFlags().String(flagLogLevel, "", "log level (DEBUG|INFO|WARN|ERROR); defaults to the config")
	rootCmd.PersistentFlags().String(flagLogFormat, "", "log format (text|json); defaults to the config")
	rootCmd.PersistentFlags().String(flagLogOutput, "", "log output (stdout|stderr); defaults to the config")
	rootCmd.PersistentFlags().Bool(flagEnableTelemetry, false, "export traces, metrics and logs through the OpenTelemetry SDK configured by OTEL_* variables")

	viper.SetEnvPrefix(appName)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		// flags of the running command take precedence over those bound by other commands
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return fmt.Errorf("failed to bind the flag set to the configuration: %v", err)
		}
		// reads `homeDir/config/config.json` into `ctx.Config` before each command
		if err := initConfig(ctx); err != nil {
			return fmt.Errorf("failed to initialize the configuration: %v", err)
		}
		if err := initLogger(ctx); err != nil {
			return fmt.Errorf("failed to initialize the logger: %v", err)
		}
		if viper.GetBool(flagEnableTelemetry) {
			shutdown, err := telemetry.SetupOTelSDK(cmd.Context(), Version())
			if err != nil {
				return fmt.Errorf("failed to set up the OpenTelemetry SDK: %v", err)
			}
			otelShutdown = shutdown
			if err := metrics.InitializeMetrics(metrics.ExporterOTel{}); err != nil {
				return fmt.Errorf("failed to initialize the metrics: %v", err)
			}
			return nil
		}
		if err := metrics.InitializeMetrics(metrics.ExporterNull{}); err != nil {
			return fmt.Errorf("failed to initialize the metrics: %v", err)
		}
		return nil
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, _ []string) error {
		if err := metrics.ShutdownMetrics(cmd.Context()); err != nil {
			return fmt.Errorf("failed to shutdown the metrics subsystem: %v", err)
		}
		if otelShutdown != nil {
			return otelShutdown(cmd.Context())
		}
		return nil
	}

	rootCmd.AddCommand(
		configCmd(ctx),
		chainsCmd(ctx),
		extractCmd(ctx),
		fetchProofCmd(ctx),
		waitRootCmd(ctx),
		executeCmd(ctx),
		verifyCmd(ctx),
		explainCmd(ctx),
		statusCmd(ctx),
		relayCmd(ctx),
		watchCmd(ctx),
		txCmd(ctx),
		doctorCmd(ctx),
		contractsCmd(ctx),
		encodeCmd(),
		versionCmd(),
	)

	return rootCmd
}

// initConfig reads in config file and ENV variables if set.
func initConfig(ctx *config.Context) error {
	c, err := config.Load(filepath.Join(homePath, configPath))
	if err != nil {
		return err
	}
	ctx.Config = c
	return nil
}

func initLogger(ctx *config.Context) error {
	lc := ctx.Config.Global.LoggerConfig
	if v := viper.GetString(flagLogLevel); v != "" {
		lc.Level = v
	}
	if v := viper.GetString(flagLogFormat); v != "" {
		lc.Format = v
	}
	if v := viper.GetString(flagLogOutput); v != "" {
		lc.Output = v
	}
	return log.InitLogger(lc.Level, lc.Format, lc.Output, viper.GetBool(flagEnableTelemetry))
}

func noCommand(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}
