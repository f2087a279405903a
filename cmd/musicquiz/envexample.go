package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type envSection struct {
	title string
	note  string
	flags []string
}

// envSections lists the flags written to .env.example, grouped as they appear there
var envSections = []envSection{
	{
		title: "Catalog",
		note:  "deezer needs no credentials; spotify needs a client id and secret; snapshot reads --snapshot-path",
		flags: []string{
			"catalog-backend", "catalog-timeout", "catalog-rate-limit-backoff", "catalog-requests-per-sec",
			"catalog-page-cache-size", "catalog-page-cache-ttl",
		},
	},
	{
		title: "Deezer",
		flags: []string{"deezer-base-url", "deezer-any-query", "deezer-chart-ids", "deezer-genre-ids"},
	},
	{
		title: "Spotify",
		note:  "Get these from https://developer.spotify.com/dashboard (client credentials, no user login)",
		flags: []string{"spotify-client-id", "spotify-client-secret", "spotify-market"},
	},
	{
		title: "Snapshot",
		note:  "Build one with: musicquiz snapshot build --genres rock,pop",
		flags: []string{"snapshot-path", "snapshot-watch"},
	},
	{
		title: "Preview validation",
		flags: []string{"preview-timeout", "preview-cache-size", "preview-positive-ttl", "preview-negative-ttl"},
	},
	{
		title: "Round selection",
		flags: []string{"over-fetch-factor", "max-correct-attempts", "max-decoy-probes", "min-pool-size", "seed"},
	},
	{
		title: "Player history",
		note:  "Leave the database path empty to keep histories in memory only",
		flags: []string{"history-capacity", "history-max-sessions", "history-db-path"},
	},
	{
		title: "HTTP server",
		flags: []string{"server-host", "server-port", "server-read-timeout", "server-write-timeout"},
	},
	{
		title: "Application",
		flags: []string{"language", "flood-limit-per-minute"},
	},
	{
		title: "Logging",
		flags: []string{"log-level", "log-format"},
	},
}

// secretFlags get a placeholder instead of their (empty) default
var secretFlags = map[string]string{
	"spotify-client-id":     "your_spotify_client_id_here",
	"spotify-client-secret": "your_spotify_client_secret_here",
}

func generateEnvExample(cmd *cobra.Command) error {
	fmt.Println("Generating .env.example file from current configuration...")

	content := generateEnvExampleContent(cmd)
	if err := os.WriteFile(".env.example", []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write .env.example: %w", err)
	}

	fmt.Println("✅ Successfully generated .env.example file")
	return nil
}

func generateEnvExampleContent(cmd *cobra.Command) string {
	var content strings.Builder

	content.WriteString("# =============================================================================\n")
	content.WriteString("# musicquiz Configuration\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("#\n")
	content.WriteString("# Copy this file to .env and update with your values\n")
	content.WriteString("# All environment variables have CLI flag equivalents (use --help to see them)\n")
	content.WriteString("#\n")
	fmt.Fprintf(&content, "# Format: %s_<SETTING>=value\n", envPrefix)
	content.WriteString("# CLI equivalent: --<setting>\n")
	content.WriteString("#\n\n")

	for _, section := range envSections {
		writeEnvSection(&content, cmd, section)
	}

	return content.String()
}

func writeEnvSection(content *strings.Builder, cmd *cobra.Command, section envSection) {
	content.WriteString("# -----------------------------------------------------------------------------\n")
	fmt.Fprintf(content, "# %s\n", section.title)
	content.WriteString("# -----------------------------------------------------------------------------\n")
	if section.note != "" {
		fmt.Fprintf(content, "# %s\n", section.note)
	}
	fmt.Fprintf(content, "# CLI: --%s\n", strings.Join(section.flags, ", --"))

	for _, name := range section.flags {
		f := cmd.Root().PersistentFlags().Lookup(name)
		if f == nil {
			continue
		}
		value := f.DefValue
		if placeholder, ok := secretFlags[name]; ok {
			value = placeholder
		}
		fmt.Fprintf(content, "%s=%s  # %s (default: %q)\n", flagToEnvVar(name), value, f.Usage, f.DefValue)
	}
	content.WriteString("\n")
}

func flagToEnvVar(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}
