package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/restwire/restwire/packages/echo"
)

var (
	echoPortFlag    int
	echoDelayFlag   time.Duration
	echoVerboseFlag bool
)

var echoCmd = &cobra.Command{
	Use:   "echo",
	Short: "Run a local server that reflects requests back as JSON",
	Long: `Run a local HTTP server that answers every request with a JSON
reflection of what arrived: method, path, query, headers and body. Point
a request file at it to see exactly what goes on the wire, including
negotiated auth headers and cookies.

A status query parameter provokes any status code, so error handling can
be tried out locally:

  restwire echo -p 3000
  restwire send "http://localhost:3000/orders?status=503"`,
	Args: cobra.NoArgs,
	RunE: echoCommand,
}

func init() {
	echoCmd.Flags().IntVarP(&echoPortFlag, "port", "p", 3000, "Port to listen on")
	echoCmd.Flags().DurationVar(&echoDelayFlag, "delay", 0, "Delay every response, e.g. 500ms")
	echoCmd.Flags().BoolVarP(&echoVerboseFlag, "verbose", "v", false, "Log every reflected request")
}

func echoCommand(cmd *cobra.Command, args []string) error {
	server := echo.New(
		echo.WithDelay(echoDelayFlag),
		echo.WithLogger(echoLogger()),
	)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nstopping echo server")
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "echo server listening on http://localhost:%d\n", echoPortFlag)
	return server.Start(ctx, fmt.Sprintf(":%d", echoPortFlag))
}

func echoLogger() zerolog.Logger {
	if !echoVerboseFlag {
		return zerolog.Nop()
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: getEnvBool("RESTWIRE_NO_COLOR", false), TimeFormat: time.TimeOnly}
	return zerolog.New(writer).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}
