package bench

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/xio/cmd/util"
	"github.com/ValentinKolb/xio/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	benchCmdConfig = &common.ClientConfig{}
	BenchCmd       = &cobra.Command{
		Use:     "bench",
		Short:   "Measure throughput and round trip times of an xio server",
		Long:    `Run several producers that share one session and one message pool against an xio server and report the throughput and the round trip time percentiles.`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

// percentiles reported for the round trip times
var percentiles = []float64{0.5, 0.9, 0.99, 0.999}

func init() {
	cmdUtil.SetupClientFlags(BenchCmd)

	key := "producers"
	BenchCmd.Flags().Int(key, 4, cmdUtil.WrapString("The number of goroutines sending requests"))

	key = "messages"
	BenchCmd.Flags().Int(key, 10000, cmdUtil.WrapString("The number of requests every producer sends"))

	key = "payload"
	BenchCmd.Flags().Int(key, 64, cmdUtil.WrapString("The size of every request in bytes, must fit into pool-out-size"))

	key = "prometheus"
	BenchCmd.Flags().Bool(key, false, cmdUtil.WrapString("Print the pool and reactor metrics in the Prometheus text format after the run"))

	key = "csv"
	BenchCmd.Flags().String(key, "", cmdUtil.WrapString("Export the results to this CSV file"))
}

// processConfig binds the flags and reads the client configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}
	benchCmdConfig = cmdUtil.GetClientConfig()
	benchCmdConfig.Pool.Name = "bench"
	return common.InitLoggers(benchCmdConfig.LogLevel)
}

// run executes the benchmark and prints the report
func run(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for xio servers")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(benchCmdConfig.String())

	opts := Options{
		Producers: viper.GetInt("producers"),
		Messages:  viper.GetInt("messages"),
		Payload:   viper.GetInt("payload"),
	}
	fmt.Printf("Producers: %d, Messages: %d, Payload: %d bytes\n\n", opts.Producers, opts.Messages, opts.Payload)

	tr, err := cmdUtil.GetClientTransport(benchCmdConfig.Transport)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	set := metrics.NewSet()
	report, err := Run(ctx, tr, benchCmdConfig, opts, set)
	printReport(report)

	if viper.GetBool("prometheus") {
		fmt.Println()
		set.WritePrometheus(os.Stdout)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeReportToCSV(csvPath, report, opts); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return err
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// printReport prints the report in a formatted way
func printReport(r Report) {
	fmt.Printf("%-20s%d\n", "requests", r.Requests)
	fmt.Printf("%-20s%d\n", "replies", r.Replies)
	fmt.Printf("%-20s%d\n", "errors", r.Errors)
	fmt.Printf("%-20s%s\n", "duration", r.Duration)
	fmt.Printf("%-20s%.0f replies/sec\n", "throughput", r.Throughput())

	if r.RTT == nil || r.RTT.Count() == 0 {
		fmt.Printf("%-20sno samples\n", "rtt")
		return
	}
	fmt.Printf("%-20s%s\n", "rtt mean", time.Duration(r.RTT.Mean()))
	fmt.Printf("%-20s%s\n", "rtt min", time.Duration(r.RTT.Min()))
	for i, p := range r.RTT.Percentiles(percentiles) {
		fmt.Printf("%-20s%s\n", fmt.Sprintf("rtt p%g", percentiles[i]*100), time.Duration(p))
	}
	fmt.Printf("%-20s%s\n", "rtt max", time.Duration(r.RTT.Max()))
}

// writeReportToCSV writes the report to a CSV file
func writeReportToCSV(csvPath string, r Report, opts Options) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"producers", "messages", "payload", "requests", "replies", "errors", "duration_ns", "replies_per_sec", "rtt_mean_ns"}
	row := []string{
		strconv.Itoa(opts.Producers),
		strconv.Itoa(opts.Messages),
		strconv.Itoa(opts.Payload),
		strconv.FormatInt(r.Requests, 10),
		strconv.FormatInt(r.Replies, 10),
		strconv.FormatInt(r.Errors, 10),
		strconv.FormatInt(r.Duration.Nanoseconds(), 10),
		strconv.FormatFloat(r.Throughput(), 'f', 0, 64),
		"",
	}
	if r.RTT != nil {
		row[len(row)-1] = strconv.FormatFloat(r.RTT.Mean(), 'f', 0, 64)
		for i, p := range r.RTT.Percentiles(percentiles) {
			header = append(header, fmt.Sprintf("rtt_p%g_ns", percentiles[i]*100))
			row = append(row, strconv.FormatFloat(p, 'f', 0, 64))
		}
	}

	if err := writer.Write(header); err != nil {
		return err
	}
	return writer.Write(row)
}
