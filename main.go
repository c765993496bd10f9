package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pulseboard/internal/config"
	"pulseboard/internal/middleware"
	"pulseboard/internal/services"

	"github.com/spf13/cobra"
)

var version = "dev"

// v holds defaults, the config file, PULSEBOARD_* env vars and bound flags
var v = config.New()

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pulseboard",
	Short: "Live CPU, memory and disk charts for a remote host",
	Long: `pulseboard polls a metrics endpoint, keeps a short rolling window of
CPU, memory and disk utilization and pushes it to browsers over WebSocket.

Examples:
  pulseboard agent
  pulseboard serve --endpoint http://agent.lan:8000/api/metrics
  PULSEBOARD_DASHBOARD_POLL_INTERVAL=5s pulseboard serve
  pulseboard token --subscriber office-tv`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runDashboard(cmd.Context(), cfg)
	},
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Serve local host metrics for dashboards to poll",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runAgent(cmd.Context(), cfg)
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a token for a dashboard subscriber",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		subscriber, _ := cmd.Flags().GetString("subscriber")
		if !middleware.NewInputValidator().ValidateSubscriber(subscriber) {
			return fmt.Errorf("invalid subscriber name %q", subscriber)
		}

		auth, err := services.NewAuthService(cfg.Auth.Secret, cfg.Auth.SecretFile, cfg.Auth.TokenExpiry)
		if err != nil {
			return err
		}
		token, expiresAt, err := auth.GenerateToken(subscriber)
		if err != nil {
			return fmt.Errorf("generating token: %w", err)
		}
		middleware.NewSecurityLogger().LogTokenGenerated("cli", subscriber)

		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s; open http://%s/?token=<token>\n", expiresAt.Format("2006-01-02"), cfg.Server.Addr)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pulseboard version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to a YAML config file")

	serveCmd.Flags().String("addr", "", "dashboard listen address")
	serveCmd.Flags().String("endpoint", "", "metrics endpoint to poll")
	serveCmd.Flags().Duration("interval", 0, "poll interval")
	serveCmd.Flags().Int("capacity", 0, "points kept on each chart")
	serveCmd.Flags().Bool("auth", false, "require a token on /ws")

	agentCmd.Flags().String("addr", "", "agent listen address")
	agentCmd.Flags().Duration("interval", 0, "sampling interval")
	agentCmd.Flags().String("disk", "", "filesystem path to report disk usage for")

	tokenCmd.Flags().String("subscriber", "dashboard", "name embedded in the token")

	rootCmd.AddCommand(serveCmd, agentCmd, tokenCmd, versionCmd)
}

// flagKeys maps each command's flags onto config keys
var flagKeys = map[string]map[string]string{
	"serve": {
		"addr":     "server.addr",
		"endpoint": "dashboard.endpoint",
		"interval": "dashboard.poll_interval",
		"capacity": "dashboard.capacity",
		"auth":     "auth.enabled",
	},
	"agent": {
		"addr":     "agent.addr",
		"interval": "agent.sample_interval",
		"disk":     "agent.disk_path",
	},
}

// loadConfig binds the flags the user actually set and loads the config
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	for flag, key := range flagKeys[cmd.Name()] {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding --%s: %w", flag, err)
			}
		}
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(v, path)
	if err != nil {
		return nil, err
	}
	if path != "" {
		log.Printf("[CONFIG] Loaded %s", path)
	}
	return cfg, nil
}
