package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/restwire/restwire/packages/cookies"
	"github.com/restwire/restwire/packages/core/config"
	"github.com/restwire/restwire/packages/core/env"
	"github.com/restwire/restwire/packages/extract"
	rwhttp "github.com/restwire/restwire/packages/http"
	"github.com/restwire/restwire/packages/output"
	"github.com/restwire/restwire/packages/reqfile"
	"github.com/restwire/restwire/packages/sse"
	"github.com/restwire/restwire/packages/stats"
)

var sendCmd = &cobra.Command{
	Use:   "send <file|url>",
	Short: "Send a request from a file or URL",
	Long: `Send a request described in a .http file, or an ad-hoc request
against a URL.

Examples:
  restwire send api.http
  restwire send api.http --name createUser
  restwire send api.http --env-file .env --var token=abc
  restwire send https://api.example.com/users -X POST -d '{"name":"ada"}'
  restwire send api.http --extract body.id
  restwire send api.http --repeat 100 --rate 25
  restwire send api.http --watch`,
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	RunE:          sendCommand,
}

// WatchDebounceDelay is the debounce delay for file watch events
const WatchDebounceDelay = 300 * time.Millisecond

var (
	// Request selection
	sendNameFlag     string
	sendEnvFileFlag  string
	sendSettingsFlag string
	sendVarFlags     []string

	// Ad-hoc request construction
	sendMethodFlag   string
	sendHeaderFlags  []string
	sendDataFlag     string
	sendDataFileFlag string

	// Output
	sendVerboseFlag    int
	sendNoColorFlag    bool
	sendOutputFlag     string
	sendOutputFileFlag string
	sendNoBodyFlag     bool
	sendExtractFlags   []string

	// Network overrides
	sendTimeoutFlag  string
	sendProxyFlag    string
	sendInsecureFlag bool
	sendNoCookies    bool

	// Repeated dispatch
	sendRepeatFlag      int
	sendRateFlag        float64
	sendConcurrencyFlag int

	// Watch mode
	sendWatchFlag bool
)

func init() {
	// Request selection flags
	sendCmd.Flags().StringVarP(&sendNameFlag, "name", "n", "", "Request name to send when the file defines several")
	sendCmd.Flags().StringVar(&sendEnvFileFlag, "env-file", getEnvString("RESTWIRE_ENV_FILE", ""), "Path to .env file for variable interpolation (env: RESTWIRE_ENV_FILE)")
	sendCmd.Flags().StringVar(&sendSettingsFlag, "settings", getEnvString("RESTWIRE_SETTINGS", ""), "Path to settings file (env: RESTWIRE_SETTINGS)")
	sendCmd.Flags().StringArrayVar(&sendVarFlags, "var", nil, "Set a variable as name=value (repeatable)")

	// Ad-hoc request flags
	sendCmd.Flags().StringVarP(&sendMethodFlag, "method", "X", "", "HTTP method for URL dispatch (default GET, POST with a body)")
	sendCmd.Flags().StringArrayVarP(&sendHeaderFlags, "header", "H", nil, "Header as 'Name: value' (repeatable)")
	sendCmd.Flags().StringVarP(&sendDataFlag, "data", "d", "", "Request body")
	sendCmd.Flags().StringVar(&sendDataFileFlag, "data-file", "", "Read the request body from a file")

	// Output flags
	sendCmd.Flags().CountVarP(&sendVerboseFlag, "verbose", "v", "Verbose output (-v request/response detail, -vv adds pipeline logs)")
	sendCmd.Flags().BoolVar(&sendNoColorFlag, "no-color", getEnvBool("RESTWIRE_NO_COLOR", false), "Disable colored output (env: RESTWIRE_NO_COLOR)")
	sendCmd.Flags().StringVarP(&sendOutputFlag, "output", "o", getEnvString("RESTWIRE_OUTPUT", "console"), "Output format: console, json (env: RESTWIRE_OUTPUT)")
	sendCmd.Flags().StringVar(&sendOutputFileFlag, "output-file", "", "Write output to file (default: stdout)")
	sendCmd.Flags().BoolVar(&sendNoBodyFlag, "no-body", false, "Suppress the response body in console output")
	sendCmd.Flags().StringArrayVar(&sendExtractFlags, "extract", nil, "Print a value from the response: status, duration, header.<Name>, or a JSON body path (repeatable)")

	// Network flags
	sendCmd.Flags().StringVar(&sendTimeoutFlag, "timeout", getEnvString("RESTWIRE_TIMEOUT", ""), "Request timeout override (e.g., 30s, 1m) (env: RESTWIRE_TIMEOUT)")
	sendCmd.Flags().StringVar(&sendProxyFlag, "proxy", getEnvString("RESTWIRE_PROXY", ""), "Proxy URL override (env: RESTWIRE_PROXY)")
	sendCmd.Flags().BoolVarP(&sendInsecureFlag, "insecure", "k", getEnvBool("RESTWIRE_INSECURE", false), "Skip server certificate verification (env: RESTWIRE_INSECURE)")
	sendCmd.Flags().BoolVar(&sendNoCookies, "no-cookies", false, "Do not read or persist cookies for this dispatch")

	// Repeat flags
	sendCmd.Flags().IntVar(&sendRepeatFlag, "repeat", 1, "Dispatch the request N times and report aggregate figures")
	sendCmd.Flags().Float64VarP(&sendRateFlag, "rate", "r", 0, "Cap dispatch starts per second in repeat mode (0 = unpaced)")
	sendCmd.Flags().IntVar(&sendConcurrencyFlag, "concurrency", getEnvInt("RESTWIRE_CONCURRENCY", 1), "In-flight dispatch cap in repeat mode (env: RESTWIRE_CONCURRENCY)")

	// Watch flags
	sendCmd.Flags().BoolVarP(&sendWatchFlag, "watch", "w", false, "Watch the request file and re-send on change")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// Formatter is the output surface shared by the console and JSON formats.
type Formatter interface {
	FormatResponse(resp *rwhttp.Response)
	FormatEvent(e sse.Event)
	FormatSummary(s stats.Summary)
	FormatExtract(name, value string)
	FormatError(err error)
	FormatHeader(version string)
}

func warnToStderr(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}

func sendCommand(cmd *cobra.Command, args []string) error {
	formatter, cleanup, err := newFormatter()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	defer cleanup()

	if sendVerboseFlag > 0 {
		formatter.FormatHeader(version)
	}

	settings, err := loadSendSettings()
	if err != nil {
		formatter.FormatError(err)
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	builderOpts := []rwhttp.BuilderOption{
		rwhttp.WithWarnFunc(warnToStderr),
	}
	if cwd, err := os.Getwd(); err == nil {
		builderOpts = append(builderOpts, rwhttp.WithPathContext(rwhttp.PathContext{WorkspaceRoot: cwd}))
	}

	if settings.GetRememberCookies() {
		store, err := openSendCookieStore(settings)
		if err != nil {
			warnToStderr("cookie store unavailable, continuing without persistence: %v", err)
		} else {
			defer store.Close()
			jar, err := cookies.NewJar(store)
			if err != nil {
				warnToStderr("cookie store unavailable, continuing without persistence: %v", err)
			} else {
				builderOpts = append(builderOpts, rwhttp.WithCookieJar(jar))
			}
		}
	}

	builder := rwhttp.NewBuilder(builderOpts...)
	client := rwhttp.NewClient(
		rwhttp.WithWarningHandler(warnToStderr),
		rwhttp.WithLogger(newPipelineLogger()),
	)

	// runOnce reloads settings and file variables from scratch, so watch-mode
	// re-runs pick up edits to either.
	source := args[0]
	runOnce := func(ctx context.Context) error {
		settings, err := loadSendSettings()
		if err != nil {
			return err
		}
		resolver, err := newResolver()
		if err != nil {
			return err
		}
		req, err := buildRequest(source, resolver)
		if err != nil {
			return err
		}
		if sendRepeatFlag > 1 {
			return runRepeat(ctx, builder, client, req, settings, formatter)
		}
		return dispatchOnce(ctx, builder, client, req, settings, formatter)
	}

	err = runOnce(ctx)
	if err != nil {
		formatter.FormatError(err)
	}

	if !sendWatchFlag {
		return err
	}
	if !isRequestPath(source) {
		err := usageErrorf("--watch needs a request file, not a URL")
		formatter.FormatError(err)
		return err
	}
	if err := watchAndResend(ctx, cmd, source, runOnce, formatter); err != nil {
		formatter.FormatError(err)
		return err
	}
	return nil
}

// newFormatter builds the formatter for the output flag. The returned
// cleanup closes the output file, if one was requested.
func newFormatter() (Formatter, func(), error) {
	cleanup := func() {}

	var outWriter *os.File
	if sendOutputFileFlag != "" {
		f, err := os.Create(sendOutputFileFlag)
		if err != nil {
			return nil, cleanup, fmt.Errorf("cannot create output file: %w", err)
		}
		outWriter = f
		cleanup = func() { _ = f.Close() }
	}

	switch strings.ToLower(sendOutputFlag) {
	case "json":
		opts := []output.JSONOption{}
		if outWriter != nil {
			opts = append(opts, output.JSONWithWriter(outWriter))
		}
		return output.NewJSONFormatter(opts...), cleanup, nil
	case "console":
		consoleOpts := []output.ConsoleOption{
			output.WithVerbose(sendVerboseFlag > 0),
			output.WithNoColor(sendNoColorFlag),
			output.WithNoBody(sendNoBodyFlag || len(sendExtractFlags) > 0),
		}
		if outWriter != nil {
			consoleOpts = append(consoleOpts, output.WithWriter(outWriter))
		}
		return output.NewConsoleFormatter(consoleOpts...), cleanup, nil
	default:
		return nil, cleanup, usageErrorf("unknown output format %q (use console or json)", sendOutputFlag)
	}
}

// newPipelineLogger returns the structured logger for the dispatch
// pipeline. It stays silent below -vv.
func newPipelineLogger() zerolog.Logger {
	if sendVerboseFlag < 2 {
		return zerolog.Nop()
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: sendNoColorFlag, TimeFormat: time.TimeOnly}
	return zerolog.New(writer).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}

// loadSendSettings loads the settings file and applies CLI overrides.
func loadSendSettings() (*config.Settings, error) {
	settings, err := config.LoadSettings(sendSettingsFlag)
	if err != nil {
		return nil, err
	}

	if sendTimeoutFlag != "" {
		timeout, err := time.ParseDuration(sendTimeoutFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout value %q: %w (use format like 30s, 1m, 500ms)", sendTimeoutFlag, err)
		}
		settings.TimeoutMs = int(timeout.Milliseconds())
	}
	if sendProxyFlag != "" {
		settings.Proxy = sendProxyFlag
	}
	if sendInsecureFlag {
		settings.StrictSSL = config.BoolPtr(false)
	}
	if sendNoCookies {
		settings.RememberCookies = config.BoolPtr(false)
	}
	return settings, nil
}

// newResolver builds a fresh resolver for one run, so watch-mode re-runs
// never see stale file variables.
func newResolver() (*env.Resolver, error) {
	resolver := env.NewResolver()
	resolver.SetWarnFunc(warnToStderr)

	if sendEnvFileFlag != "" {
		if err := resolver.LoadDotEnv(sendEnvFileFlag); err != nil {
			return nil, err
		}
	}
	for _, pair := range sendVarFlags {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, usageErrorf("invalid --var %q (want name=value)", pair)
		}
		resolver.SetVariable(strings.TrimSpace(name), value)
	}
	return resolver, nil
}

// buildRequest turns the source argument into a logical request: a path to
// a request file selects a request from it, anything else is treated as a
// URL for an ad-hoc request.
func buildRequest(source string, resolver *env.Resolver) (*rwhttp.Request, error) {
	if isRequestPath(source) {
		return requestFromFile(source, resolver)
	}
	return adHocRequest(source, resolver)
}

// isRequestPath reports whether source names a request file on disk.
func isRequestPath(source string) bool {
	if strings.Contains(source, "://") {
		return false
	}
	_, err := os.Stat(source)
	return err == nil
}

func requestFromFile(path string, resolver *env.Resolver) (*rwhttp.Request, error) {
	f, err := reqfile.ParseFile(path)
	if err != nil {
		return nil, err
	}
	if len(f.Requests) == 0 {
		return nil, fmt.Errorf("%s defines no requests", path)
	}

	f.Seed(resolver)

	var picked *reqfile.Request
	switch {
	case sendNameFlag != "":
		picked = f.Lookup(sendNameFlag)
		if picked == nil {
			return nil, fmt.Errorf("no request named %q in %s (have: %s)", sendNameFlag, path, strings.Join(f.Names(), ", "))
		}
	case len(f.Requests) == 1:
		picked = f.Requests[0]
	default:
		return nil, fmt.Errorf("%s defines %d requests; pick one with --name (%s)", path, len(f.Requests), strings.Join(f.Names(), ", "))
	}

	return f.Materialize(picked, resolver)
}

func adHocRequest(rawURL string, resolver *env.Resolver) (*rwhttp.Request, error) {
	body := sendDataFlag
	if sendDataFileFlag != "" {
		data, err := os.ReadFile(sendDataFileFlag)
		if err != nil {
			return nil, fmt.Errorf("reading --data-file: %w", err)
		}
		body = string(data)
	}

	method := strings.ToUpper(sendMethodFlag)
	if method == "" {
		method = "GET"
		if body != "" {
			method = "POST"
		}
	}

	req := rwhttp.NewRequest(method, resolver.Resolve(rawURL))
	for _, h := range sendHeaderFlags {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, usageErrorf("invalid header %q (want 'Name: value')", h)
		}
		req.SetHeader(strings.TrimSpace(name), resolver.Resolve(strings.TrimSpace(value)))
	}
	if body != "" {
		req.SetBody(resolver.Resolve(body))
	}
	return req, nil
}

func openSendCookieStore(settings *config.Settings) (*cookies.SQLiteStore, error) {
	path := settings.CookieFile
	if path == "" {
		var err error
		path, err = defaultCookiePath()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return cookies.OpenSQLite(path)
}

// dispatchOnce sends the request and renders the outcome. Event-stream
// responses are followed until the server closes or the context ends.
func dispatchOnce(ctx context.Context, builder *rwhttp.Builder, client *rwhttp.Client, req *rwhttp.Request, settings *config.Settings, formatter Formatter) error {
	opts, err := builder.Prepare(ctx, req, settings)
	if err != nil {
		return err
	}

	resp, err := client.Send(ctx, opts)
	if err != nil {
		return err
	}

	if resp.EventStream() {
		formatter.FormatResponse(resp)
		if err := sse.Follow(ctx, resp, formatter.FormatEvent); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		runExtracts(resp, formatter)
		return nil
	}

	runExtracts(resp, formatter)
	if len(sendExtractFlags) == 0 || strings.EqualFold(sendOutputFlag, "json") {
		formatter.FormatResponse(resp)
	}
	return nil
}

// runExtracts evaluates --extract expressions against the response. For
// console output the values print bare; the JSON formatter folds them into
// the response document.
func runExtracts(resp *rwhttp.Response, formatter Formatter) {
	for _, expr := range sendExtractFlags {
		value, ok := extract.FromResponse(resp, expr)
		if !ok {
			warnToStderr("extract %q matched nothing", expr)
		}
		formatter.FormatExtract(expr, extract.Format(value))
	}
}

// runRepeat dispatches the request repeatedly and prints aggregate figures
// instead of individual responses. Each dispatch is prepared from scratch,
// so per-dispatch auth state and dynamic variables behave as in single mode.
func runRepeat(ctx context.Context, builder *rwhttp.Builder, client *rwhttp.Client, req *rwhttp.Request, settings *config.Settings, formatter Formatter) error {
	summary, err := stats.Run(ctx, stats.RunConfig{
		Count:       sendRepeatFlag,
		Rate:        sendRateFlag,
		Concurrency: sendConcurrencyFlag,
	}, func(ctx context.Context) (int, int64, error) {
		opts, prepErr := builder.Prepare(ctx, req, settings)
		if prepErr != nil {
			return 0, 0, prepErr
		}
		resp, sendErr := client.Send(ctx, opts)
		if sendErr != nil {
			return 0, 0, sendErr
		}
		if resp.EventStream() {
			resp.Close()
		}
		return resp.StatusCode(), resp.BodySize(), nil
	})

	formatter.FormatSummary(summary)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// watchAndResend re-runs the send whenever a request file in the source's
// directory changes, or the settings file is edited.
func watchAndResend(ctx context.Context, cmd *cobra.Command, source string, runOnce func(context.Context) error, formatter Formatter) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(source)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	settingsCh := make(chan string, 1)
	if settingsPath := watchedSettingsPath(); settingsPath != "" {
		go func() {
			err := config.Watch(ctx, settingsPath, func(*config.Settings) {
				select {
				case settingsCh <- settingsPath:
				default:
				}
			}, func(err error) {
				formatter.FormatError(err)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				formatter.FormatError(err)
			}
		}()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	// Debounce timer for rapid file changes
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) || !isRequestFile(event.Name) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "\nFile changed: %s\n\n", event.Name)
				if err := runOnce(ctx); err != nil {
					formatter.FormatError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n")
			})

		case path := <-settingsCh:
			// config.Watch debounces on its own; no second timer here.
			fmt.Fprintf(cmd.OutOrStdout(), "\nSettings changed: %s\n\n", path)
			if err := runOnce(ctx); err != nil {
				formatter.FormatError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			formatter.FormatError(fmt.Errorf("watcher error: %w", err))
		}
	}
}

// watchedSettingsPath names the settings file watch mode should track:
// the --settings flag when given, otherwise the first probe name present
// in the current directory.
func watchedSettingsPath() string {
	if sendSettingsFlag != "" {
		return sendSettingsFlag
	}
	for _, name := range config.SettingsFilenames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// collectFiles expands file and directory arguments into request files.
func collectFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			err := filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && isRequestFile(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		} else {
			if isRequestFile(arg) {
				files = append(files, arg)
			}
		}
	}

	return files, nil
}

func isRequestFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".http" || ext == ".rest"
}
