package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/puntos-app/puntos/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&serveMetrics, "metrics", false, "Expose Prometheus metrics on /metrics")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost    string
	servePort    int
	serveMetrics bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the puntos API server",
	Long:  `Start the HTTP API at localhost:8787 (see [api] in ~/.puntos/config.toml).`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.SetupLogging(); err != nil {
		return err
	}

	// Override config from flags
	if serveHost != "" {
		d.Config.API.Host = serveHost
	}
	if servePort > 0 {
		d.Config.API.Port = servePort
	}
	if serveMetrics {
		d.Config.Telemetry.Prometheus = true
		d.Server.EnableMetrics()
	}
	d.Server.SetVersion(rootCmd.Version)

	return d.Serve(context.Background())
}
