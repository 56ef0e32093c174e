package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/restwire/restwire/packages/cookies"
	"github.com/restwire/restwire/packages/core/config"
)

var (
	cookiesSettingsFlag string
	cookieFileFlag      string
)

var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Manage the persistent cookie store",
	Long: `Inspect or clear the cookies persisted across invocations.

Examples:
  restwire cookies list
  restwire cookies clear
  restwire cookies list --cookie-file ./session.db`,
}

var cookiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored cookies",
	RunE:  cookiesListCommand,
}

var cookiesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all stored cookies",
	RunE:  cookiesClearCommand,
}

func init() {
	cookiesCmd.PersistentFlags().StringVar(&cookiesSettingsFlag, "settings", "", "Path to settings file")
	cookiesCmd.PersistentFlags().StringVar(&cookieFileFlag, "cookie-file", "", "Path to the cookie store")

	cookiesCmd.AddCommand(cookiesListCmd)
	cookiesCmd.AddCommand(cookiesClearCmd)
}

// resolveCookiePath picks the store location: the flag wins, then the
// settings file, then the per-user default.
func resolveCookiePath() (string, error) {
	if cookieFileFlag != "" {
		return cookieFileFlag, nil
	}

	settings, err := config.LoadSettings(cookiesSettingsFlag)
	if err != nil {
		return "", err
	}
	if settings.CookieFile != "" {
		return settings.CookieFile, nil
	}
	return defaultCookiePath()
}

func defaultCookiePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine cookie store location: %w", err)
	}
	return filepath.Join(dir, "restwire", "cookies.db"), nil
}

func openCookieStore() (*cookies.SQLiteStore, error) {
	path, err := resolveCookiePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return cookies.OpenSQLite(path)
}

func cookiesListCommand(cmd *cobra.Command, args []string) error {
	store, err := openCookieStore()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.All()
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No cookies stored.")
		return nil
	}

	dim := color.New(color.Faint).SprintFunc()
	fmt.Fprintf(cmd.OutOrStdout(), "%-30s %-20s %-24s %s\n", "HOST", "NAME", "EXPIRES", "VALUE")
	for _, e := range entries {
		expires := "session"
		if !e.Expires.IsZero() {
			expires = e.Expires.Format("2006-01-02 15:04:05")
		}
		value := e.Value
		if len(value) > 40 {
			value = value[:37] + "..."
		}
		// Pad before coloring; escape codes would count against the width.
		fmt.Fprintf(cmd.OutOrStdout(), "%-30s %-20s %s %s\n", e.Host, e.Name, dim(fmt.Sprintf("%-24s", expires)), value)
	}
	return nil
}

func cookiesClearCommand(cmd *cobra.Command, args []string) error {
	store, err := openCookieStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Cookie store cleared.")
	return nil
}
