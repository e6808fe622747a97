package main

import (
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

var (
	serverAddr string
	authToken  string
	jsonOutput bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "watchctl",
	Short: "Control the watchtower motion monitoring daemon",
	Long: `Start and stop the camera polling loop, inspect camera states,
and list recent recognized visitors over the daemon's management API.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "http://localhost:8080", "Management API address")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Operator token (or WATCHTOWER_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(camerasCmd)
	rootCmd.AddCommand(visitorsCmd)
	rootCmd.AddCommand(tokenCmd)
}

func apiClient() *resty.Client {
	r := resty.New()
	r.SetBaseURL(serverAddr)
	r.SetTimeout(60 * time.Second)
	r.SetHeader("Accept", "application/json")

	token := authToken
	if token == "" {
		token = os.Getenv("WATCHTOWER_TOKEN")
	}
	if token != "" {
		r.SetAuthToken(token)
	}
	return r
}
