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

	"github.com/restwire/restwire/packages/capture"
)

var (
	recordPortFlag    int
	recordTargetFlag  string
	recordOutputFlag  string
	recordExcludeFlag []string
	recordRedactFlag  []string
	recordVerboseFlag bool
	recordDedupeFlag  bool
	recordJSONFlag    bool
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record live traffic into a request file",
	Long: `Run a reverse proxy that records traffic on its way to the target, then
write the captured requests as a request file when it stops.

Point a browser, a client or curl at the proxy; stop it with Ctrl-C.
Authorization, Cookie and API key headers are replaced with {{NAME}}
placeholders so the exported file templates credentials instead of
embedding them.

Examples:
  restwire record --target https://api.example.com
  restwire record -t https://api.example.com -p 9090 -o recorded.http
  restwire record -t https://api.example.com --exclude /health --exclude /metrics
  restwire record -t https://api.example.com --dedupe`,
	Args: cobra.NoArgs,
	RunE: recordCommand,
}

func init() {
	recordCmd.Flags().IntVarP(&recordPortFlag, "port", "p", 8080, "Port to listen on")
	recordCmd.Flags().StringVarP(&recordTargetFlag, "target", "t", "", "Target URL to proxy to (required)")
	recordCmd.Flags().StringVarP(&recordOutputFlag, "output-file", "o", "", "Write the export to a file (default: stdout)")
	recordCmd.Flags().StringArrayVar(&recordExcludeFlag, "exclude", nil, "Skip requests whose path contains this fragment (repeatable)")
	recordCmd.Flags().StringArrayVar(&recordRedactFlag, "redact", nil, "Additional headers to replace with placeholders (repeatable)")
	recordCmd.Flags().BoolVarP(&recordVerboseFlag, "verbose", "v", false, "Log every recorded exchange")
	recordCmd.Flags().BoolVar(&recordDedupeFlag, "dedupe", false, "Record only the first exchange per method and path")
	recordCmd.Flags().BoolVar(&recordJSONFlag, "json", false, "Export as JSON instead of a request file")

	_ = recordCmd.MarkFlagRequired("target")
}

func recordCommand(cmd *cobra.Command, args []string) error {
	recorder, err := capture.New(recordTargetFlag,
		capture.WithLogger(recordLogger()),
		capture.WithExclude(recordExcludeFlag),
		capture.WithRedactHeaders(recordRedactFlag),
		capture.WithDedupe(recordDedupeFlag),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nstopping proxy")
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "recording on http://localhost:%d -> %s\n", recordPortFlag, recorder.Target())

	if err := recorder.Start(ctx, fmt.Sprintf(":%d", recordPortFlag)); err != nil {
		return err
	}

	exchanges := recorder.Exchanges()
	if len(exchanges) == 0 {
		fmt.Fprintln(os.Stderr, "no requests recorded")
		return nil
	}
	fmt.Fprintf(os.Stderr, "recorded %d requests\n", len(exchanges))

	var export []byte
	if recordJSONFlag {
		export, err = recorder.ExportJSON()
		if err != nil {
			return fmt.Errorf("export recordings: %w", err)
		}
		export = append(export, '\n')
	} else {
		export = []byte(recorder.Export())
	}

	if recordOutputFlag == "" {
		fmt.Print(string(export))
		return nil
	}
	if err := os.WriteFile(recordOutputFlag, export, 0644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(os.Stderr, "exported to %s\n", recordOutputFlag)
	return nil
}

func recordLogger() zerolog.Logger {
	if !recordVerboseFlag {
		return zerolog.Nop()
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: getEnvBool("RESTWIRE_NO_COLOR", false), TimeFormat: time.TimeOnly}
	return zerolog.New(writer).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}
