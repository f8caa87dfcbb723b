package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestPrepareTempConfigFile(t *testing.T) {
	PrepareTempConfigFile(t, "log:\n    level: debug\n")

	home := os.Getenv("HOME")
	content, err := os.ReadFile(filepath.Join(home, ".reactive", "config.yaml"))
	require.NoError(t, err)
	require.Equal(t, "log:\n    level: debug\n", string(content))
}

func TestMustBindPFlag(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("util-test-nodes", 7, "")

	MustBindPFlag("utiltest.nodes", flags.Lookup("util-test-nodes"))
	require.Equal(t, 7, viper.GetInt("utiltest.nodes"))

	require.Panics(t, func() {
		MustBindPFlag("utiltest.missing", nil)
	})
}

func TestMustBindEnv(t *testing.T) {
	t.Setenv("UTILTEST_LEVEL", "warn")
	MustBindEnv("utiltest.level", "UTILTEST_LEVEL")
	require.Equal(t, "warn", viper.GetString("utiltest.level"))

	require.Panics(t, func() {
		MustBindEnv()
	})
}
