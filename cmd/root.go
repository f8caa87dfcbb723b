// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCommand enables all children commands to read flags from CLI flags, environment variables prefixed with REACTIVE, or config.yaml (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("REACTIVE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/reactive", "$HOME/.reactive", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// a missing or malformed file is reported by run.ReadConfig
	_ = viper.ReadInConfig()

	return &cobra.Command{
		Use:   "reactive",
		Short: "A tick-driven incremental query engine",
		Long: `A tick-driven incremental query engine.

Producers write keyed values into collective channels from any goroutine. Once per tick a single
consumer polls a graph of derived queries and receives, for every registered query, the changes
since the previous tick together with a read-only view of its current state.`,
	}
}
