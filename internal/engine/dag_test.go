package engine

import (
	"errors"
	"reflect"
	"testing"

	"github.com/shaiso/Deployer/internal/domain"
)

func step(id string, deps ...string) *domain.Step {
	return &domain.Step{ID: id, DependsOn: deps, Status: domain.StepStatusPending}
}

func TestBuildGraph_SimpleChain(t *testing.T) {
	g, err := BuildGraph([]*domain.Step{
		step("A"),
		step("B", "A"),
		step("C", "B"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if g.Size() != 3 {
		t.Errorf("expected 3 nodes, got %d", g.Size())
	}
	if len(g.RootNodes) != 1 || g.RootNodes[0].ID != "A" {
		t.Errorf("expected single root A, got %v", g.RootNodes)
	}

	nodeC := g.GetNode("C")
	if len(nodeC.DependsOn) != 1 || nodeC.DependsOn[0].ID != "B" {
		t.Error("node C should depend on B")
	}
}

func TestBuildGraph_Diamond(t *testing.T) {
	// A → B → D
	// A → C → D
	g, err := BuildGraph([]*domain.Step{
		step("A"),
		step("B", "A"),
		step("C", "A"),
		step("D", "B", "C"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if g.GetNode("D").InDegree != 2 {
		t.Errorf("expected D in-degree 2, got %d", g.GetNode("D").InDegree)
	}

	pos := make(map[string]int)
	for i, n := range g.Order {
		pos[n.ID] = i
	}
	if pos["A"] > pos["B"] || pos["A"] > pos["C"] || pos["B"] > pos["D"] || pos["C"] > pos["D"] {
		t.Errorf("order violates dependencies: %v", pos)
	}
}

func TestBuildGraph_DuplicateDependencyCountedOnce(t *testing.T) {
	g, err := BuildGraph([]*domain.Step{
		step("A"),
		step("B", "A", "A"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.GetNode("B").InDegree != 1 {
		t.Errorf("expected in-degree 1, got %d", g.GetNode("B").InDegree)
	}
}

func TestBuildGraph_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		steps []*domain.Step
		want  error
	}{
		{"empty id", []*domain.Step{step("")}, ErrEmptyStepID},
		{"duplicate id", []*domain.Step{step("A"), step("A")}, ErrDuplicateStepID},
		{"missing dependency", []*domain.Step{step("A", "X")}, ErrMissingDependency},
		{"self dependency", []*domain.Step{step("A", "A")}, ErrSelfDependency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildGraph(tt.steps)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("expected ValidationError, got %T", err)
			}
		})
	}
}

func TestBuildGraph_CycleNamesSteps(t *testing.T) {
	// A → B → C → B, D зависит от цикла, но сам в нём не участвует
	_, err := BuildGraph([]*domain.Step{
		step("A"),
		step("B", "A", "C"),
		step("C", "B"),
		step("D", "C"),
	})

	if !errors.Is(err, ErrCyclicDependency) {
		t.Fatalf("expected ErrCyclicDependency, got %v", err)
	}

	var cycleErr *DependencyCycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected DependencyCycleError, got %T", err)
	}
	if !reflect.DeepEqual(cycleErr.StepIDs, []string{"B", "C"}) {
		t.Errorf("expected cycle [B C], got %v", cycleErr.StepIDs)
	}
}

func TestBuildGraph_Empty(t *testing.T) {
	g, err := BuildGraph(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Size() != 0 || len(g.Order) != 0 {
		t.Error("empty graph should have no nodes")
	}
}
