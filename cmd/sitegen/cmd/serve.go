package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iamxurulin/xu-AI-Zero/internal/diagnostics"
	"github.com/iamxurulin/xu-AI-Zero/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP server. It exposes:
  POST /workflow/execute      run a workflow and return its final context
  GET  /workflow/execute-sse  run a workflow and stream its progress
  GET  /workflow/graph        the workflow graph as a mermaid flowchart
  GET  /api/v1/events         the shared event stream
  GET  /metrics               Prometheus metrics`,
	RunE: runServe,
}

var (
	serveHost   string
	servePort   int
	serveNoCORS bool
	serveWatch  bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "host to bind to (overrides server.host)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveNoCORS, "no-cors", false, "disable CORS")
	serveCmd.Flags().BoolVar(&serveWatch, "watch-config", true, "apply log level changes from the config file without a restart")
}

// serverConfig merges configuration and flags.
func serverConfig(host string, port int, origins []string) web.Config {
	cfg := web.DefaultConfig()
	if host != "" {
		cfg.Host = host
	}
	if port != 0 {
		cfg.Port = port
	}
	if len(origins) > 0 {
		cfg.CORSOrigins = origins
	}
	if serveHost != "" {
		cfg.Host = serveHost
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	cfg.EnableCORS = !serveNoCORS
	return cfg
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	a.cache.StartJanitor(ctx)
	if serveWatch {
		watchConfig(viper.GetViper(), a)
	}

	webCfg := serverConfig(cfg.Server.Host, cfg.Server.Port, cfg.Server.CORSOrigins)
	server := web.New(webCfg, a.logger, a.workflow,
		web.WithEventBus(a.bus),
		web.WithMetrics(a.metrics),
		web.WithHealthChecker(diagnostics.NewSystemMetricsCollector(cfg.Workflow.OutputDir)),
	)
	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	a.logger.Info("server started",
		"addr", server.Addr(),
		"cors", webCfg.EnableCORS,
		"history", cfg.History.Backend,
	)

	<-ctx.Done()
	a.logger.Info("shutting down server...")

	if err := server.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}

// watchConfig reloads the log level when the config file changes. Other
// settings need a restart.
func watchConfig(v *viper.Viper, a *app) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		reloadLogLevel(v, a, e)
	})
	v.WatchConfig()
	a.logger.Info("watching config file", "file", v.ConfigFileUsed())
}

func reloadLogLevel(v *viper.Viper, a *app, e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	level := v.GetString("log.level")
	a.logger.SetLevel(level)
	a.logger.Info("configuration reloaded", "file", e.Name, "log_level", level)
}
