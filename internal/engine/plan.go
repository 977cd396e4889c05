package engine

import (
	"fmt"

	"github.com/shaiso/Deployer/internal/domain"
)

// ID шагов, которые строит план.
const (
	StepIDBackup  = "backup"
	StepIDDeploy  = "deploy"
	StepIDConfig  = "config"
	StepIDMigrate = "migrate"
	StepIDSeed    = "seed"
	StepIDAssets  = "assets"
	StepIDCleanup = "cleanup"
)

// ComponentStepID возвращает ID шага компонента.
func ComponentStepID(name string) string {
	return "component-" + name
}

// BuildPlan строит упорядоченный список шагов из конфигурации деплоя.
//
// Порядок и зависимости:
//
//	backup → pre-hook-1 → pre-hook-2 → ...
//	deploy (ждёт последний pre-hook только при hooks.chainPre)
//	config ← deploy
//	migrate ← deploy
//	seed ← migrate | deploy
//	component-X ← migrate (без миграций — корень)
//	assets ← deploy
//	post-hook-1 ← все листья графа, post-hook-N ← post-hook-(N-1)
//	cleanup ← последний шаг
//
// Пустой план не является ошибкой: решение принимает координатор.
func BuildPlan(cfg *domain.DeploymentConfig) ([]*domain.Step, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	b := &planBuilder{
		cfg: cfg,
		ctx: NewContext(cfg),
	}
	if err := b.build(); err != nil {
		return nil, err
	}
	return b.steps, nil
}

type planBuilder struct {
	cfg   *domain.DeploymentConfig
	ctx   *Context
	steps []*domain.Step
}

func (b *planBuilder) build() error {
	cfg := b.cfg
	scope := cfg.Scope
	cmds := cfg.Commands

	// Backup и pre-хуки — одна цепочка
	lastPre := ""
	if cfg.Rollback.BackupBeforeDeployment && cmds.Backup != nil {
		if err := b.addCommand(StepIDBackup, "Backup before deployment", domain.StepKindPreHook, *cmds.Backup, nil); err != nil {
			return err
		}
		lastPre = StepIDBackup
	}
	for i, hook := range cfg.Hooks.Pre {
		id := fmt.Sprintf("pre-hook-%d", i+1)
		if err := b.addCommand(id, "Pre-deploy hook "+hook.String(), domain.StepKindPreHook, hook, deps(lastPre)); err != nil {
			return err
		}
		lastPre = id
	}

	hasCore := scope.Core
	if hasCore {
		var d []string
		if cfg.Hooks.ChainPre {
			d = deps(lastPre)
		}
		if err := b.addStage(StepIDDeploy, "Deploy core", domain.StepKindDeploy, cmds.Deploy, "", d); err != nil {
			return err
		}
	}

	coreDeps := func() []string {
		if hasCore {
			return deps(StepIDDeploy)
		}
		return nil
	}

	if scope.Config {
		if err := b.addStage(StepIDConfig, "Apply configuration", domain.StepKindDeploy, cmds.Config, "", coreDeps()); err != nil {
			return err
		}
	}

	if scope.Migrations {
		if err := b.addStage(StepIDMigrate, "Run migrations", domain.StepKindMigrate, cmds.Migrate, "", coreDeps()); err != nil {
			return err
		}
	}

	if scope.Seed {
		d := coreDeps()
		if scope.Migrations {
			d = deps(StepIDMigrate)
		}
		if err := b.addStage(StepIDSeed, "Seed data", domain.StepKindSeed, cmds.Seed, "", d); err != nil {
			return err
		}
	}

	for _, name := range scope.Components {
		var d []string
		if scope.Migrations {
			d = deps(StepIDMigrate)
		}
		if err := b.addStage(ComponentStepID(name), "Deploy component "+name, domain.StepKindDeploy, cmds.Component, name, d); err != nil {
			return err
		}
	}

	if scope.Assets {
		if err := b.addStage(StepIDAssets, "Publish assets", domain.StepKindDeploy, cmds.Assets, "", coreDeps()); err != nil {
			return err
		}
	}

	// Первый post-хук — единая точка сборки всех веток
	for i, hook := range cfg.Hooks.Post {
		id := fmt.Sprintf("post-hook-%d", i+1)
		var d []string
		if i == 0 {
			d = b.sinks()
		} else {
			d = deps(b.last())
		}
		if err := b.addCommand(id, "Post-deploy hook "+hook.String(), domain.StepKindPostHook, hook, d); err != nil {
			return err
		}
	}

	if cmds.Cleanup != nil && len(b.steps) > 0 {
		if err := b.addCommand(StepIDCleanup, "Cleanup", domain.StepKindCleanup, *cmds.Cleanup, deps(b.last())); err != nil {
			return err
		}
	}

	return nil
}

// addStage добавляет шаг стадии с откатом, проверкой здоровья и политикой повторов.
func (b *planBuilder) addStage(id, name string, kind domain.StepKind, stage *domain.StageConfig, component string, dependsOn []string) error {
	if stage == nil {
		return NewValidationError(id, "command", "command is required for the requested scope", ErrMissingCommand)
	}

	ctx := b.ctx.ForStep(id, component)

	cmd, err := RenderCommand(stage.Command, ctx)
	if err != nil {
		return NewValidationError(id, "command", err.Error(), err)
	}

	step := b.newStep(id, name, kind, cmd, dependsOn)

	if stage.Rollback != nil {
		comp, err := RenderCommand(*stage.Rollback, ctx)
		if err != nil {
			return NewValidationError(id, "rollback", err.Error(), err)
		}
		step.Compensate = &comp
	}

	if stage.HealthCheck != nil {
		hc := *stage.HealthCheck
		if hc.URL, err = Render(hc.URL, ctx); err != nil {
			return NewValidationError(id, "healthCheck", err.Error(), err)
		}
		step.HealthCheck = &hc
	}

	if stage.Retries != nil {
		step.Retries = *stage.Retries
	}
	if stage.TimeoutSec > 0 {
		step.TimeoutSec = stage.TimeoutSec
	}

	b.steps = append(b.steps, step)
	return nil
}

// addCommand добавляет шаг-хук без отката.
func (b *planBuilder) addCommand(id, name string, kind domain.StepKind, cmd domain.Command, dependsOn []string) error {
	rendered, err := RenderCommand(cmd, b.ctx.ForStep(id, ""))
	if err != nil {
		return NewValidationError(id, "command", err.Error(), err)
	}
	b.steps = append(b.steps, b.newStep(id, name, kind, rendered, dependsOn))
	return nil
}

func (b *planBuilder) newStep(id, name string, kind domain.StepKind, cmd domain.Command, dependsOn []string) *domain.Step {
	return &domain.Step{
		ID:         id,
		Name:       name,
		Kind:       kind,
		Ordinal:    len(b.steps),
		Command:    cmd,
		DependsOn:  dependsOn,
		Retries:    b.cfg.Policy.StepRetries,
		TimeoutSec: b.cfg.Policy.StepTimeoutSec,
		Status:     domain.StepStatusPending,
	}
}

// last возвращает ID последнего добавленного шага.
func (b *planBuilder) last() string {
	if len(b.steps) == 0 {
		return ""
	}
	return b.steps[len(b.steps)-1].ID
}

// sinks возвращает шаги, от которых пока никто не зависит, в порядке плана.
// Последний добавленный шаг всегда среди них.
func (b *planBuilder) sinks() []string {
	hasDependents := make(map[string]bool, len(b.steps))
	for _, s := range b.steps {
		for _, d := range s.DependsOn {
			hasDependents[d] = true
		}
	}
	result := make([]string, 0)
	for _, s := range b.steps {
		if !hasDependents[s.ID] {
			result = append(result, s.ID)
		}
	}
	return result
}

func deps(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}
