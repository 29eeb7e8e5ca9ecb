package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/phrazzld/taskgate/internal/config"
	"github.com/phrazzld/taskgate/internal/platform/logger"
)

// flagBinding maps a command-line flag onto a config key.
type flagBinding struct {
	key  string
	flag string
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:          "taskgate",
		Short:        "Lifecycle-aware background task manager",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: ./taskgate.yaml)")
	root.PersistentFlags().String("log-level", "", "log level: debug | info | warn | error")

	root.AddCommand(newRunCmd(&cfgFile))
	root.AddCommand(newMigrateCmd(&cfgFile))
	return root
}

// loadConfig builds the config for cmd from defaults, the config file, the
// environment and finally any flags the user set.
func loadConfig(cmd *cobra.Command, cfgFile string, bindings ...flagBinding) (*config.Config, error) {
	v := config.NewViper(cfgFile)

	bindings = append(bindings, flagBinding{key: "log.level", flag: "log-level"})
	for _, b := range bindings {
		if err := bindFlag(v, b.key, cmd.Flags(), b.flag); err != nil {
			return nil, err
		}
	}

	cfg, err := config.LoadFrom(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// bindFlag binds flag to key only when the user set it, so an empty flag
// default never masks the config file or environment.
func bindFlag(v *viper.Viper, key string, fs *pflag.FlagSet, flag string) error {
	f := fs.Lookup(flag)
	if f == nil {
		return fmt.Errorf("unknown flag %q", flag)
	}
	if !f.Changed {
		return nil
	}
	if err := v.BindPFlag(key, f); err != nil {
		return fmt.Errorf("failed to bind flag %q to %q: %w", flag, key, err)
	}
	return nil
}

func setupLogger(cfg *config.Config) (*slog.Logger, error) {
	log, err := logger.Setup(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return log, nil
}
