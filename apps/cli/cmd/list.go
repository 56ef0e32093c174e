package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/restwire/restwire/packages/reqfile"
)

var listCmd = &cobra.Command{
	Use:   "list <file|directory>",
	Short: "List requests defined in request files",
	Long: `List the requests defined in .http or .rest files.

Examples:
  restwire list api.http
  restwire list ./requests/`,
	Args: cobra.MinimumNArgs(1),
	RunE: listCommand,
}

func listCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no .http or .rest files found")
	}

	for _, file := range files {
		f, err := reqfile.ParseFile(file)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStderr(), "Error parsing %s: %v\n", file, err)
			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\n%s:\n", file)
		for _, req := range f.Requests {
			if req.Name != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s (%s %s)\n", req.Name, req.Method, req.URL)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s %s\n", req.Method, req.URL)
			}
		}
	}

	return nil
}
