package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/restwire/restwire/packages/core/config"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new restwire project",
	Long: `Initialize a new restwire project in the current directory.

This creates:
  - .restwire.json - Settings file
  - example.http   - Example request file

Examples:
  restwire init
  restwire init --force`,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	settingsFile := filepath.Join(cwd, ".restwire.json")
	exampleFile := filepath.Join(cwd, "example.http")

	if !forceInit {
		for _, f := range []string{settingsFile, exampleFile} {
			if _, err := os.Stat(f); err == nil {
				return fmt.Errorf("file already exists: %s (use --force to overwrite)", f)
			}
		}
	}

	settings := config.DefaultSettings()
	settings.TimeoutMs = 30_000
	if err := settings.SaveSettings(settingsFile); err != nil {
		return fmt.Errorf("failed to create settings file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", settingsFile)

	exampleContent := `@baseUrl = https://httpbin.org

### Get your request headers
# @name headers

GET {{baseUrl}}/headers
Accept: application/json

### Post a JSON payload
# @name createThing

POST {{baseUrl}}/post
Content-Type: application/json
X-Request-Id: {{$uuid}}

{
  "name": "Test Thing",
  "createdAt": "{{$now}}"
}
`

	if err := os.WriteFile(exampleFile, []byte(exampleContent), 0644); err != nil {
		return fmt.Errorf("failed to create example file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", exampleFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\nrestwire project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'restwire send example.http --name headers' to try it out.\n")

	return nil
}
