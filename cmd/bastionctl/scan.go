package main

import (
	"fmt"
	"net/url"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/threat"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

var scanFlags struct {
	userAgent string
	source    string
}

var scanCmd = &cobra.Command{
	Use:   "scan <url>",
	Short: "Run the request threat detector against a URL",
	Long: `Scan reports which attack signatures a request for the given URL
would match, without sending it anywhere.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanFlags.userAgent, "user-agent", "", "user agent to check against known attack tools")
	scanCmd.Flags().StringVar(&scanFlags.source, "source", "cli", "source identity recorded on events")
}

func runScan(cmd *cobra.Command, args []string) error {
	u, err := url.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	detector := threat.NewDetector(clockwork.NewRealClock())
	events := detector.Scan(u.EscapedPath(), u.RawQuery, scanFlags.source)
	if ev := detector.ScanUserAgent(scanFlags.userAgent, scanFlags.source); ev != nil {
		events = append(events, *ev)
	}

	if events == nil {
		events = []models.ThreatEvent{}
	}
	return printJSON(cmd, struct {
		URL     string               `json:"url"`
		Matched bool                 `json:"matched"`
		Events  []models.ThreatEvent `json:"events"`
	}{URL: args[0], Matched: len(events) > 0, Events: events})
}
