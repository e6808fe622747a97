package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/halcyon-labs/watchtower/internal/engine"
	"github.com/halcyon-labs/watchtower/internal/tokens"
)

var (
	visitorLimit int
	tokenTTL     time.Duration
	tokenSubject string
)

func init() {
	visitorsCmd.Flags().IntVar(&visitorLimit, "limit", 20, "Number of entries to show")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "Token subject")
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Printf("Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

func fail(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
	os.Exit(1)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show poll loop status",
	Run: func(cmd *cobra.Command, args []string) {
		var st engine.Status
		resp, err := apiClient().R().SetResult(&st).Get("/api/v1/business-logic/status")
		if err != nil {
			fail("Error fetching status: %v", err)
		}
		if resp.IsError() {
			fail("Server returned %d: %s", resp.StatusCode(), resp.String())
		}

		if jsonOutput {
			printJSON(st)
			return
		}

		running := "stopped"
		if st.Running {
			running = "running"
		}
		fmt.Printf("Poll loop:  %s\n", running)
		if st.StartTime != "" {
			fmt.Printf("Started:    %s\n", st.StartTime)
		}
		if st.Uptime != "" {
			fmt.Printf("Uptime:     %s\n", st.Uptime)
		}
		if st.Completed != nil {
			fmt.Printf("Completed:  %v\n", *st.Completed)
		}
		if st.Cancelled != nil {
			fmt.Printf("Cancelled:  %v\n", *st.Cancelled)
		}
		if st.Error != "" {
			fmt.Printf("Error:      %s\n", st.Error)
		}
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the camera polling loop",
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := apiClient().R().Post("/api/v1/business-logic/start")
		if err != nil {
			fail("Error starting loop: %v", err)
		}
		if resp.IsError() {
			fail("Server returned %d: %s", resp.StatusCode(), resp.String())
		}
		fmt.Println("Poll loop started.")
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the camera polling loop",
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := apiClient().R().Post("/api/v1/business-logic/stop")
		if err != nil {
			fail("Error stopping loop: %v", err)
		}
		if resp.IsError() {
			fail("Server returned %d: %s", resp.StatusCode(), resp.String())
		}
		fmt.Println("Poll loop stopped.")
	},
}

var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "List known cameras and their states",
	Run: func(cmd *cobra.Command, args []string) {
		var snaps []engine.CameraSnapshot
		resp, err := apiClient().R().SetResult(&snaps).Get("/api/v1/cameras")
		if err != nil {
			fail("Error fetching cameras: %v", err)
		}
		if resp.IsError() {
			fail("Server returned %d: %s", resp.StatusCode(), resp.String())
		}

		if jsonOutput {
			printJSON(snaps)
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "VENDOR\tNAME\tSTATUS\tLAST POLLED")
		fmt.Fprintln(w, "------\t----\t------\t-----------")
		for _, s := range snaps {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				s.Vendor, s.Name, s.Status, s.LastPolled.Format(time.RFC3339))
		}
		w.Flush()
	},
}

var visitorsCmd = &cobra.Command{
	Use:   "visitors",
	Short: "List recent recognized visitors",
	Run: func(cmd *cobra.Command, args []string) {
		var logs []engine.VisitorLog
		resp, err := apiClient().R().
			SetQueryParam("limit", fmt.Sprint(visitorLimit)).
			SetResult(&logs).
			Get("/api/v1/visitor-logs/recent")
		if err != nil {
			fail("Error fetching visitor logs: %v", err)
		}
		if resp.IsError() {
			fail("Server returned %d: %s", resp.StatusCode(), resp.String())
		}

		if jsonOutput {
			printJSON(logs)
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "PERSON\tCAMERA\tCONFIDENCE\tSEEN AT")
		fmt.Fprintln(w, "------\t------\t----------\t-------")
		for _, vl := range logs {
			fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\n",
				vl.Person, vl.Camera, vl.Confidence, vl.VisitedAt.Format(time.RFC3339))
		}
		w.Flush()
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate an operator token",
	Long:  `Signs a bearer token with JWT_SIGNING_KEY for use against the management API.`,
	Run: func(cmd *cobra.Command, args []string) {
		key := os.Getenv("JWT_SIGNING_KEY")
		if key == "" {
			fail("JWT_SIGNING_KEY is not set")
		}

		tok, err := tokens.NewManager(key).GenerateToken(tokenSubject, tokenTTL)
		if err != nil {
			fail("Error generating token: %v", err)
		}
		fmt.Println(tok)
	},
}
