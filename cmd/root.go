package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/xio/cmd/bench"
	"github.com/ValentinKolb/xio/cmd/hello"
	"github.com/ValentinKolb/xio/cmd/serve"
	"github.com/ValentinKolb/xio/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "xio",
		Short: "asynchronous request/response messaging",
		Long: fmt.Sprintf(`xio (v%s)

Asynchronous request/response messaging over pre-allocated message pools.
A single event reactor drives every session, replies are delivered through callbacks.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of xio",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("xio v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(hello.HelloCmd)
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix, http, the server also accepts mux)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
