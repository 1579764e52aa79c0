// Package config provides the Viperize helper the rest of this module's
// configuration (pkg/config.Options) is built on: a throwaway
// *cobra.Command wired to a *viper.Viper so flags can be declared once,
// against the standard library's flag.FlagSet, and bound to both the
// command line and the environment.
package config

import (
	"flag"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envPrefix namespaces environment variable lookups: flag
// "deadline.seconds" resolves from SAMPCTL_DEADLINE_SECONDS.
const envPrefix = "SAMPCTL"

// Viperize declares flags via one or more addFlags functions against a
// standard flag.FlagSet, then binds them into a *viper.Viper through a
// throwaway *cobra.Command. Callers parse CLI args with
// command.ParseFlags, or read values straight off the returned Viper
// (which also picks up SAMPCTL_-prefixed environment variables).
func Viperize(addFlags ...func(*flag.FlagSet)) (*viper.Viper, *cobra.Command) {
	flagSet := new(flag.FlagSet)
	for _, add := range addFlags {
		add(flagSet)
	}

	pflagSet := new(pflag.FlagSet)
	pflagSet.AddGoFlagSet(flagSet)

	command := &cobra.Command{
		Use:          "sampctl",
		SilenceUsage: true,
		RunE:         func(*cobra.Command, []string) error { return nil },
	}
	command.Flags().AddFlagSet(pflagSet)

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(command.Flags())

	return v, command
}
