package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/restwire/restwire/packages/core/config"
	"github.com/restwire/restwire/packages/core/env"
	"github.com/restwire/restwire/packages/reqfile"
)

var validateEnvFileFlag string

var validateCmd = &cobra.Command{
	Use:   "validate <file|directory>",
	Short: "Validate request and settings files without sending anything",
	Long: `Validate request files for syntax errors and settings files against
the settings schema, without dispatching any request. Placeholders that
would not resolve are reported as warnings.

Examples:
  restwire validate api.http
  restwire validate ./requests/
  restwire validate .restwire.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func init() {
	validateCmd.Flags().StringVar(&validateEnvFileFlag, "env-file", "", "Path to .env file consulted for placeholder resolution")
}

func validateCommand(cmd *cobra.Command, args []string) error {
	resolver := env.NewResolver()
	if validateEnvFileFlag != "" {
		if err := resolver.LoadDotEnv(validateEnvFileFlag); err != nil {
			return err
		}
	}

	var requestArgs []string
	hasErrors := false

	for _, arg := range args {
		if isSettingsFile(arg) {
			if err := config.ValidateSettingsFile(arg); err != nil {
				fmt.Fprintf(cmd.OutOrStderr(), "Error in %s: %v\n", arg, err)
				hasErrors = true
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s\n", arg)
			}
			continue
		}
		requestArgs = append(requestArgs, arg)
	}

	if len(requestArgs) > 0 {
		files, err := collectFiles(requestArgs)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no .http or .rest files found")
		}

		for _, file := range files {
			f, err := reqfile.ParseFile(file)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStderr(), "Error in %s: %v\n", file, err)
				hasErrors = true
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s (%d requests)\n", file, len(f.Requests))
			reportUnresolved(cmd, f, resolver)
		}
	}

	if hasErrors {
		return fmt.Errorf("validation failed")
	}
	return nil
}

// reportUnresolved lists placeholders that neither the file's variables,
// the dotenv file, builtins nor the OS environment would satisfy.
func reportUnresolved(cmd *cobra.Command, f *reqfile.File, resolver *env.Resolver) {
	f.Seed(resolver)

	for _, req := range f.Requests {
		seen := map[string]bool{}
		var missing []string
		collect := func(s string) {
			for _, name := range resolver.Unresolved(s) {
				if !seen[name] {
					seen[name] = true
					missing = append(missing, name)
				}
			}
		}

		collect(req.URL)
		for _, h := range req.Headers {
			collect(h.Value)
		}
		collect(req.Body)

		if len(missing) > 0 {
			name := req.Name
			if name == "" {
				name = req.Method + " " + req.URL
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  warning: %s: unresolved {{%s}}\n", name, strings.Join(missing, "}}, {{"))
		}
	}
}

// isSettingsFile reports whether the path names a settings file rather
// than a request file.
func isSettingsFile(path string) bool {
	base := filepath.Base(path)
	for _, name := range config.SettingsFilenames {
		if base == name {
			return true
		}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
