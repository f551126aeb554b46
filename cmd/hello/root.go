package hello

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/xio/cmd/util"
	"github.com/ValentinKolb/xio/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	helloCmdConfig = &common.ClientConfig{}
	HelloCmd       = &cobra.Command{
		Use:   "hello",
		Short: "Send greetings to an xio server",
		Long: `Connect one session to an xio server, queue the initial greetings before the reactor starts
and let a producer add one more greeting per interval. Every reply is printed, the command
exits with status 0 only if every greeting was answered.`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cmdUtil.SetupClientFlags(HelloCmd)

	key := "initial"
	HelloCmd.Flags().StringSlice(key, []string{"Hello, Mike", "Hello, Bob"}, cmdUtil.WrapString("Greetings queued before the reactor starts"))

	key = "greeting"
	HelloCmd.Flags().String(key, "Hello, Sam", cmdUtil.WrapString("Greeting sent by the producer"))

	key = "count"
	HelloCmd.Flags().Int(key, 5, cmdUtil.WrapString("How many greetings the producer sends"))

	key = "interval"
	HelloCmd.Flags().Duration(key, time.Second, cmdUtil.WrapString("Pause between two greetings of the producer"))
}

// processConfig binds the flags and reads the client configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}
	helloCmdConfig = cmdUtil.GetClientConfig()
	helloCmdConfig.Pool.Name = "hello"
	return common.InitLoggers(helloCmdConfig.LogLevel)
}

// run greets the server until every greeting is answered or a signal arrives
func run(_ *cobra.Command, _ []string) error {
	Logger.Debugf(helloCmdConfig.String())

	tr, err := cmdUtil.GetClientTransport(helloCmdConfig.Transport)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := Greet(ctx, tr, helloCmdConfig, Options{
		Initial:  viper.GetStringSlice("initial"),
		Greeting: viper.GetString("greeting"),
		Count:    viper.GetInt("count"),
		Interval: viper.GetDuration("interval"),
	})
	Logger.Infof("Sent %d greetings, %d replies, %d errors, mean rtt %s", res.Sent, res.Replied, res.Failed, res.RTT)
	return err
}
