package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/EduardF1/adversus-interview-assignment/core/infra/buildinfo"
)

var (
	rootCmd = &cobra.Command{
		Use:   "notelockctl",
		Short: "Operator CLI for the note lock service",
		Long: `notelockctl talks to a notelockd server over HTTP.

Sessions are opaque strings: mint one with "notelockctl session", export it
as NOTELOCK_SESSION and every lock-holding command will use it.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindCommandFlags(cmd)
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("notelockctl %s\n", buildinfo.Info())
		},
	}
)

func init() {
	cobra.OnInitialize(initClientConfig)

	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "Base URL of the notelockd server")
	rootCmd.PersistentFlags().String("session", "", "Session token used as the lock holder")
	rootCmd.PersistentFlags().Int("timeout", 10, "Request timeout in seconds")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(acquireCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(updateCmd)
}

// initClientConfig loads env files and wires viper so flags can also arrive
// as NOTELOCK_* environment variables.
func initClientConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("notelock")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// bindCommandFlags binds the invoked command's flags to viper.
func bindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
