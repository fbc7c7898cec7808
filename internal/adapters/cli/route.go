package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fleetshuttle/router/internal/adapters/roadservice"
	"github.com/fleetshuttle/router/internal/adapters/vrp"
	"github.com/fleetshuttle/router/internal/api"
	"github.com/fleetshuttle/router/internal/application/common"
	"github.com/fleetshuttle/router/internal/application/orchestrator"
	"github.com/fleetshuttle/router/internal/domain/shared"
	"github.com/fleetshuttle/router/internal/infrastructure/config"
	"github.com/fleetshuttle/router/internal/infrastructure/zonefile"
)

// NewRouteCommand builds the "route" subcommand: load config, load one
// request file, run it through the orchestrator, print the response.
func NewRouteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Run one routing request through the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoute(configPath, requestPath)
		},
	}

	cmd.Flags().StringVar(&requestPath, "request", "", "path to the routing request JSON file")
	_ = cmd.MarkFlagRequired("request")

	return cmd
}

func runRoute(configPath, requestPath string) error {
	cfg := config.MustLoadConfig(configPath)
	logger := buildLogger(cfg.Logging)

	zones, err := zonefile.Load(cfg.ZoneFile.Path)
	if err != nil {
		return fmt.Errorf("shuttle-router: load zone file: %w", err)
	}

	raw, err := os.ReadFile(requestPath)
	if err != nil {
		return fmt.Errorf("shuttle-router: read request file: %w", err)
	}
	var req api.RoutingRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("shuttle-router: parse request file: %w", err)
	}

	clock := shared.NewRealClock()
	handler := orchestrator.NewHandler(orchestrator.Deps{
		RoadService: roadservice.NewHTTPClient(cfg.RoadService.BaseURLs, clock),
		Solver:      vrp.NewSubprocessSolver(cfg.Solver.Command, cfg.Solver.Args...),
		Zones:       zones,
		Profile:     &cfg.Profile,
		Clock:       clock,
	})

	mediator := common.NewMediator()
	mediator.RegisterMiddleware(common.RequestLoggingMiddleware)
	mediator.RegisterMiddleware(common.RequestTimingMiddleware(func() int64 { return clock.Now().UnixMilli() }))
	if err := common.RegisterHandler[*api.RoutingRequest](mediator, handler); err != nil {
		return fmt.Errorf("shuttle-router: register handler: %w", err)
	}

	ctx := common.WithLogger(context.Background(), logger)
	resp, err := mediator.Send(ctx, &req)
	if err != nil {
		return fmt.Errorf("shuttle-router: route request: %w", err)
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("shuttle-router: encode response: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func buildLogger(cfg config.LoggingConfig) common.RequestLogger {
	out := os.Stdout
	if cfg.Output == "stderr" {
		out = os.Stderr
	}

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return common.NewSlogLogger(slog.New(handler))
}
