// Package repotest provides contract tests for [repo.Store] implementations.
package repotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/repo"
)

// Factory creates a fresh, empty [repo.Store] for each test.
type Factory func(t *testing.T) repo.Store

func sampleConfig() domain.DeploymentConfig {
	return domain.DeploymentConfig{
		Environment:    domain.EnvironmentStaging,
		DeploymentType: domain.DeploymentTypeFull,
		Version:        "v1.4.2",
		Scope:          domain.ScopeConfig{Core: true, Components: []string{"api"}},
		Commands: domain.CommandsConfig{
			Deploy: &domain.StageConfig{
				Command:  domain.Command{Run: "./deploy.sh"},
				Rollback: &domain.Command{Run: "./deploy.sh --revert"},
			},
		},
	}
}

func sampleDeployment() *domain.Deployment {
	d := domain.NewDeployment(sampleConfig(), "alice")
	d.CreatedAt = d.CreatedAt.Truncate(time.Microsecond)
	return d
}

func sampleStep(deploymentID uuid.UUID, id string, ordinal int) *domain.Step {
	return &domain.Step{
		DeploymentID: deploymentID,
		ID:           id,
		Name:         "Step " + id,
		Kind:         domain.StepKindDeploy,
		Ordinal:      ordinal,
		Command:      domain.Command{Run: "echo " + id, Env: map[string]string{"X": "1"}},
		Compensate:   &domain.Command{Run: "undo " + id},
		HealthCheck:  &domain.HealthCheck{URL: "http://svc/health", ExpectedStatus: 204},
		Retries:      2,
		TimeoutSec:   30,
		Status:       domain.StepStatusPending,
	}
}

// Run exercises the [repo.Store] contract.
func Run(t *testing.T, factory Factory) {
	t.Run("CreateAndGetDeployment", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		d := sampleDeployment()

		if err := store.CreateDeployment(ctx, d); err != nil {
			t.Fatalf("CreateDeployment: %v", err)
		}

		got, err := store.GetDeployment(ctx, d.ID)
		if err != nil {
			t.Fatalf("GetDeployment: %v", err)
		}
		if got.Status != domain.DeploymentStatusPending {
			t.Errorf("Status = %q, want %q", got.Status, domain.DeploymentStatusPending)
		}
		if got.Environment != domain.EnvironmentStaging {
			t.Errorf("Environment = %q, want staging", got.Environment)
		}
		if got.CreatedBy != "alice" {
			t.Errorf("CreatedBy = %q, want alice", got.CreatedBy)
		}
		if got.Config.Commands.Deploy == nil || got.Config.Commands.Deploy.Rollback == nil {
			t.Fatalf("Config.Commands.Deploy lost in round trip: %+v", got.Config.Commands)
		}
		if got.Config.Commands.Deploy.Rollback.Run != "./deploy.sh --revert" {
			t.Errorf("Deploy.Rollback.Run = %q", got.Config.Commands.Deploy.Rollback.Run)
		}
		if len(got.Config.Scope.Components) != 1 {
			t.Errorf("Scope.Components = %v, want [api]", got.Config.Scope.Components)
		}
	})

	t.Run("CreateDeploymentDuplicate", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		d := sampleDeployment()
		_ = store.CreateDeployment(ctx, d)
		err := store.CreateDeployment(ctx, d)
		if !errors.Is(err, repo.ErrAlreadyExists) {
			t.Fatalf("second CreateDeployment: got %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("GetDeploymentNotFound", func(t *testing.T) {
		store := factory(t)
		_, err := store.GetDeployment(context.Background(), uuid.New())
		if !errors.Is(err, repo.ErrNotFound) {
			t.Fatalf("GetDeployment: got %v, want ErrNotFound", err)
		}
	})

	t.Run("UpdateDeployment", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		d := sampleDeployment()
		if err := store.CreateDeployment(ctx, d); err != nil {
			t.Fatalf("CreateDeployment: %v", err)
		}

		d.MarkRunning()
		d.TotalSteps, d.CompletedSteps, d.FailedSteps, d.SkippedSteps = 4, 2, 1, 1
		d.MarkRolledBack("step deploy failed")
		if err := store.UpdateDeployment(ctx, d); err != nil {
			t.Fatalf("UpdateDeployment: %v", err)
		}

		got, err := store.GetDeployment(ctx, d.ID)
		if err != nil {
			t.Fatalf("GetDeployment: %v", err)
		}
		if got.Status != domain.DeploymentStatusRolledBack {
			t.Errorf("Status = %q, want rolled_back", got.Status)
		}
		if got.TotalSteps != 4 || got.CompletedSteps != 2 || got.FailedSteps != 1 || got.SkippedSteps != 1 {
			t.Errorf("counts = %d/%d/%d/%d, want 4/2/1/1",
				got.TotalSteps, got.CompletedSteps, got.FailedSteps, got.SkippedSteps)
		}
		if got.Error != "step deploy failed" {
			t.Errorf("Error = %q", got.Error)
		}
		if got.StartedAt == nil || got.CompletedAt == nil {
			t.Errorf("StartedAt/CompletedAt not persisted")
		}
	})

	t.Run("UpdateDeploymentNotFound", func(t *testing.T) {
		store := factory(t)
		err := store.UpdateDeployment(context.Background(), sampleDeployment())
		if !errors.Is(err, repo.ErrNotFound) {
			t.Fatalf("UpdateDeployment: got %v, want ErrNotFound", err)
		}
	})

	t.Run("ReturnedDeploymentIsACopy", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		d := sampleDeployment()
		_ = store.CreateDeployment(ctx, d)

		got, _ := store.GetDeployment(ctx, d.ID)
		got.Status = domain.DeploymentStatusFailed

		again, _ := store.GetDeployment(ctx, d.ID)
		if again.Status != domain.DeploymentStatusPending {
			t.Errorf("mutating a returned deployment changed the store: %q", again.Status)
		}
	})

	t.Run("ListDeploymentsFilter", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		base := time.Now().UTC().Truncate(time.Microsecond)
		var ids []uuid.UUID
		for i, env := range []domain.Environment{domain.EnvironmentDev, domain.EnvironmentStaging, domain.EnvironmentStaging} {
			d := sampleDeployment()
			d.Environment = env
			d.CreatedAt = base.Add(time.Duration(i) * time.Second)
			if err := store.CreateDeployment(ctx, d); err != nil {
				t.Fatalf("CreateDeployment: %v", err)
			}
			ids = append(ids, d.ID)
		}

		all, err := store.ListDeployments(ctx, repo.DeploymentFilter{})
		if err != nil {
			t.Fatalf("ListDeployments: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("len = %d, want 3", len(all))
		}
		if all[0].ID != ids[2] {
			t.Errorf("newest first: got %s, want %s", all[0].ID, ids[2])
		}

		staging, _ := store.ListDeployments(ctx, repo.DeploymentFilter{Environment: domain.EnvironmentStaging})
		if len(staging) != 2 {
			t.Errorf("staging len = %d, want 2", len(staging))
		}

		page, _ := store.ListDeployments(ctx, repo.DeploymentFilter{Limit: 1, Offset: 1})
		if len(page) != 1 || page[0].ID != ids[1] {
			t.Errorf("page = %v, want [%s]", page, ids[1])
		}

		running, _ := store.ListDeployments(ctx, repo.DeploymentFilter{Status: domain.DeploymentStatusRunning})
		if len(running) != 0 {
			t.Errorf("running len = %d, want 0", len(running))
		}
	})

	t.Run("StepsRoundTrip", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		d := sampleDeployment()
		if err := store.CreateDeployment(ctx, d); err != nil {
			t.Fatalf("CreateDeployment: %v", err)
		}

		second := sampleStep(d.ID, "migrate", 1)
		second.DependsOn = []string{"deploy"}
		second.Compensate = nil
		second.HealthCheck = nil
		for _, s := range []*domain.Step{second, sampleStep(d.ID, "deploy", 0)} {
			if err := store.CreateStep(ctx, s); err != nil {
				t.Fatalf("CreateStep %s: %v", s.ID, err)
			}
		}

		steps, err := store.ListSteps(ctx, d.ID)
		if err != nil {
			t.Fatalf("ListSteps: %v", err)
		}
		if len(steps) != 2 {
			t.Fatalf("len = %d, want 2", len(steps))
		}
		if steps[0].ID != "deploy" || steps[1].ID != "migrate" {
			t.Errorf("order = [%s %s], want [deploy migrate]", steps[0].ID, steps[1].ID)
		}

		deploy := steps[0]
		if deploy.Command.Run != "echo deploy" || deploy.Command.Env["X"] != "1" {
			t.Errorf("Command = %+v", deploy.Command)
		}
		if deploy.Compensate == nil || deploy.Compensate.Run != "undo deploy" {
			t.Errorf("Compensate = %+v", deploy.Compensate)
		}
		if deploy.HealthCheck == nil || deploy.HealthCheck.ExpectedStatus != 204 {
			t.Errorf("HealthCheck = %+v", deploy.HealthCheck)
		}
		if deploy.Retries != 2 || deploy.TimeoutSec != 30 {
			t.Errorf("Retries/TimeoutSec = %d/%d", deploy.Retries, deploy.TimeoutSec)
		}
		if len(deploy.DependsOn) != 0 {
			t.Errorf("deploy.DependsOn = %v, want empty", deploy.DependsOn)
		}

		migrate := steps[1]
		if len(migrate.DependsOn) != 1 || migrate.DependsOn[0] != "deploy" {
			t.Errorf("migrate.DependsOn = %v", migrate.DependsOn)
		}
		if migrate.Compensate != nil || migrate.HealthCheck != nil {
			t.Errorf("optional fields should stay nil: %+v %+v", migrate.Compensate, migrate.HealthCheck)
		}
	})

	t.Run("CreateStepDuplicate", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		d := sampleDeployment()
		_ = store.CreateDeployment(ctx, d)

		_ = store.CreateStep(ctx, sampleStep(d.ID, "deploy", 0))
		err := store.CreateStep(ctx, sampleStep(d.ID, "deploy", 0))
		if !errors.Is(err, repo.ErrAlreadyExists) {
			t.Fatalf("second CreateStep: got %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("UpdateStep", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		d := sampleDeployment()
		_ = store.CreateDeployment(ctx, d)

		s := sampleStep(d.ID, "deploy", 0)
		if err := store.CreateStep(ctx, s); err != nil {
			t.Fatalf("CreateStep: %v", err)
		}

		start := time.Now().UTC().Truncate(time.Microsecond)
		s.MarkRunning(start)
		s.MarkFailed(start.Add(1500*time.Millisecond), "partial output", "exit code 1", 3)
		if err := store.UpdateStep(ctx, s); err != nil {
			t.Fatalf("UpdateStep: %v", err)
		}

		steps, _ := store.ListSteps(ctx, d.ID)
		if len(steps) != 1 {
			t.Fatalf("len = %d, want 1", len(steps))
		}
		got := steps[0]
		if got.Status != domain.StepStatusFailed {
			t.Errorf("Status = %q, want failed", got.Status)
		}
		if got.Attempts != 3 || got.Output != "partial output" || got.Error != "exit code 1" {
			t.Errorf("result = %d/%q/%q", got.Attempts, got.Output, got.Error)
		}
		if got.DurationMs != 1500 {
			t.Errorf("DurationMs = %d, want 1500", got.DurationMs)
		}
		if got.StartedAt == nil || !got.StartedAt.Equal(start) {
			t.Errorf("StartedAt = %v, want %v", got.StartedAt, start)
		}
	})

	t.Run("UpdateStepNotFound", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		d := sampleDeployment()
		_ = store.CreateDeployment(ctx, d)

		err := store.UpdateStep(ctx, sampleStep(d.ID, "missing", 0))
		if !errors.Is(err, repo.ErrNotFound) {
			t.Fatalf("UpdateStep: got %v, want ErrNotFound", err)
		}
	})

	t.Run("AuditAppendOnly", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		d := sampleDeployment()
		_ = store.CreateDeployment(ctx, d)

		requested := domain.NewAuditEntry(d, domain.AuditActionRequested, domain.AuditOutcomeSuccess, nil, d)
		before := *d
		d.MarkRunning()
		started := domain.NewAuditEntry(d, domain.AuditActionStarted, domain.AuditOutcomeSuccess, before, d)
		other := domain.NewAuditEntry(sampleDeployment(), domain.AuditActionRequested, domain.AuditOutcomeSuccess, nil, nil)

		for _, e := range []*domain.AuditEntry{requested, started, other} {
			if err := store.AppendAudit(ctx, e); err != nil {
				t.Fatalf("AppendAudit: %v", err)
			}
		}
		if err := store.AppendAudit(ctx, requested); !errors.Is(err, repo.ErrAlreadyExists) {
			t.Errorf("duplicate AppendAudit: got %v, want ErrAlreadyExists", err)
		}

		entries, err := store.ListAudit(ctx, domain.AuditResourceDeployment, d.ID.String())
		if err != nil {
			t.Fatalf("ListAudit: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("len = %d, want 2", len(entries))
		}
		if entries[0].Action != domain.AuditActionRequested || entries[1].Action != domain.AuditActionStarted {
			t.Errorf("actions = [%s %s]", entries[0].Action, entries[1].Action)
		}
		if len(entries[0].Before) != 0 {
			t.Errorf("requested.Before = %s, want empty", entries[0].Before)
		}
		if len(entries[1].Before) == 0 || len(entries[1].After) == 0 {
			t.Errorf("started entry lost its snapshots")
		}
		if entries[1].Metadata["environment"] != "staging" {
			t.Errorf("Metadata = %v", entries[1].Metadata)
		}
	})
}
