package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the gcal-mcp-remote application
var rootCmd = &cobra.Command{
	Use:   "gcal-mcp-remote",
	Short: "Remote MCP server for Google Calendar",
	Long: `gcal-mcp-remote is a remote Model Context Protocol (MCP) server that gives
AI assistants access to Google Calendar.

It brokers OAuth between MCP clients and Google: clients authenticate with
OAuth 2.1 and receive broker tokens, while the server holds the sealed
Google credentials and talks to the Calendar API on their behalf.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "gcal-mcp-remote version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gcal-mcp-remote version %s\n", version)
		},
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
