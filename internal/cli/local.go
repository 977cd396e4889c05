package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Deployer/internal/coordinator"
	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/engine"
	"github.com/shaiso/Deployer/internal/health"
	"github.com/shaiso/Deployer/internal/repo"
	"github.com/shaiso/Deployer/internal/runner"
	"github.com/shaiso/Deployer/internal/telemetry"
)

// NewPlanCmd создаёт команду, которая строит план локально, без API.
func NewPlanCmd(outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Build and print the execution plan of a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			cfg, err := engine.LoadConfigFile(file)
			if err != nil {
				return err
			}

			plan, err := engine.BuildPlan(cfg)
			if err != nil {
				return err
			}
			graph, err := engine.BuildGraph(plan)
			if err != nil {
				return err
			}

			order := make([]string, 0, len(graph.Plan))
			for _, node := range graph.Plan {
				order = append(order, node.ID)
			}

			headers := []string{"ID", "KIND", "DEPENDS_ON", "COMMAND", "COMPENSATE"}
			rows := make([][]string, len(plan))
			for i, s := range plan {
				compensate := ""
				if s.HasCompensation() {
					compensate = s.Compensate.String()
				}
				rows[i] = []string{
					s.ID, string(s.Kind), strings.Join(s.DependsOn, ","),
					s.Command.String(), compensate,
				}
			}

			out.Print(headers, rows, localPlan{
				Environment:    cfg.Environment,
				Version:        cfg.Version,
				MaxConcurrency: cfg.Parallelization.EffectiveConcurrency(),
				Steps:          plan,
				Order:          order,
			})
			out.Success(fmt.Sprintf("%d step(s), max concurrency %d",
				len(plan), cfg.Parallelization.EffectiveConcurrency()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Deployment config file (YAML or JSON)")
	cmd.MarkFlagRequired("file")

	return cmd
}

type localPlan struct {
	Environment    domain.Environment `json:"environment"`
	Version        string             `json:"version"`
	MaxConcurrency int                `json:"max_concurrency"`
	Steps          []*domain.Step     `json:"steps"`
	Order          []string           `json:"order"`
}

// NewRunCmd создаёт команду, которая выполняет деплой в текущем процессе.
//
// Состояние хранится в памяти и пропадает после завершения команды.
// Ctrl+C отменяет деплой.
func NewRunCmd(outputFn func() *Output) *cobra.Command {
	var file string
	var logLevel string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a deployment locally without the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			cfg, err := engine.LoadConfigFile(file)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// --actor — persistent флаг корневой команды
			actor, _ := cmd.Flags().GetString("actor")
			if actor == "" {
				actor = "cli"
			}

			logger := telemetry.NewLogger(cmd.ErrOrStderr(), logLevel, "text")
			store := repo.NewMemoryStore()

			d, err := runLocal(ctx, store, runner.NewRegistry(), logger, *cfg, actor)
			if err != nil {
				return err
			}

			steps, err := store.ListSteps(context.Background(), d.ID)
			if err != nil {
				return err
			}

			headers := []string{"ID", "KIND", "STATUS", "ATTEMPTS", "DURATION", "ERROR"}
			rows := make([][]string, len(steps))
			for i, s := range steps {
				rows[i] = []string{
					s.ID, string(s.Kind), string(s.Status), strconv.Itoa(s.Attempts),
					formatMs(s.DurationMs), s.Error,
				}
			}
			out.Print(headers, rows, steps)

			if d.Status != domain.DeploymentStatusCompleted {
				return fmt.Errorf("deployment %s: %s", d.Status, d.Error)
			}
			out.Success(fmt.Sprintf("Deployment completed: %d/%d steps", d.CompletedSteps, d.TotalSteps))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Deployment config file (YAML or JSON)")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.MarkFlagRequired("file")

	return cmd
}

// runLocal выполняет один деплой и возвращает его финальное состояние.
func runLocal(ctx context.Context, store repo.Store, r runner.Runner, logger *slog.Logger, cfg domain.DeploymentConfig, actor string) (*domain.Deployment, error) {
	coord := coordinator.New(coordinator.Config{
		Store:  store,
		Runner: r,
		Gate:   health.NewGate(health.Config{Logger: logger}),
		Logger: logger,
	})
	defer coord.Stop(context.Background())

	h, err := coord.Submit(ctx, coordinator.Request{Config: cfg, Actor: actor})
	if err != nil {
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			h.Cancel()
		case <-h.Done():
		}
	}()

	return h.Wait(context.Background())
}
