package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pingcap-incubator/tinydur/client"
	"github.com/pingcap-incubator/tinydur/pkg/logutil"
	"github.com/pingcap/log"
	"github.com/spf13/cobra"
)

var (
	sequencerAddr  string
	replicaAddrs   []string
	statusAddrs    []string
	requestTimeout time.Duration
	logLevel       string

	globalContext context.Context
	globalCancel  context.CancelFunc
)

func clientConfig() client.Config {
	return client.Config{
		Replicas:       replicaAddrs,
		Sequencer:      sequencerAddr,
		DialTimeout:    requestTimeout,
		RequestTimeout: requestTimeout,
	}
}

func initLogger(cmd *cobra.Command, args []string) error {
	return logutil.InitLogger(&log.Config{Level: logLevel})
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "dur-ctl",
		Short:             "TinyDUR control tool",
		PersistentPreRunE: initLogger,
		SilenceUsage:      true,
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&sequencerAddr, "sequencer", "s", "127.0.0.1:20100", "sequencer address")
	flags.StringSliceVarP(&replicaAddrs, "replicas", "r", []string{"127.0.0.1:20160"}, "replica addresses")
	flags.StringSliceVar(&statusAddrs, "status", []string{"127.0.0.1:20180"}, "replica HTTP status addresses")
	flags.DurationVar(&requestTimeout, "timeout", 3*time.Second, "dial and request timeout")
	flags.StringVarP(&logLevel, "L", "L", "warn", "log level: debug, info, warn, error, fatal")

	rootCmd.AddCommand(
		newExecCommand(),
		newShellCommand(),
		newStoreCommand(),
		newDigestCommand(),
		newBenchCommand(),
	)
	return rootCmd
}

func main() {
	globalContext, globalCancel = context.WithCancel(context.Background())

	sc := make(chan os.Signal, 1)
	signal.Notify(sc,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	go func() {
		sig := <-sc
		fmt.Printf("\nGot signal [%v] to exit.\n", sig)
		globalCancel()
	}()

	cobra.EnablePrefixMatching = true

	err := newRootCommand().Execute()
	globalCancel()
	if err != nil {
		os.Exit(1)
	}
}
