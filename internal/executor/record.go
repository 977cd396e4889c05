package executor

import (
	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/engine"
)

// phase — фаза шага в записи выполнения.
type phase int

const (
	phaseNotStarted phase = iota
	phaseInFlight
	phaseTerminal
)

// record — запись выполнения одного графа.
//
// Живёт только на время Executor.Run и принадлежит координирующей
// горутине, поэтому без мьютекса.
type record struct {
	graph  *engine.Graph
	phases map[string]phase

	// running — сколько шагов сейчас в полёте.
	running int

	// maxRunning — максимум одновременно выполнявшихся шагов.
	maxRunning int

	// order — порядок, в котором шаги (запускавшиеся) стали терминальными.
	order []string
}

func newRecord(g *engine.Graph) *record {
	r := &record{
		graph:  g,
		phases: make(map[string]phase, g.Size()),
		order:  make([]string, 0, g.Size()),
	}
	for _, node := range g.Plan {
		r.phases[node.ID] = phaseNotStarted
	}
	return r
}

// markInFlight переводит шаг в полёт.
func (r *record) markInFlight(id string) {
	r.phases[id] = phaseInFlight
	r.running++
	if r.running > r.maxRunning {
		r.maxRunning = r.running
	}
}

// markFinished фиксирует завершение шага, который выполнялся.
func (r *record) markFinished(id string) {
	r.phases[id] = phaseTerminal
	r.running--
	r.order = append(r.order, id)
}

// markSkipped фиксирует пропуск шага, который не запускался.
func (r *record) markSkipped(id string) {
	r.phases[id] = phaseTerminal
}

// notStarted возвращает true, если шаг ещё не запускался.
func (r *record) notStarted(id string) bool {
	return r.phases[id] == phaseNotStarted
}

// eligible — все зависимости шага завершились успешно.
func (r *record) eligible(node *engine.Node) bool {
	for _, dep := range node.DependsOn {
		if dep.Step.Status != domain.StepStatusCompleted {
			return false
		}
	}
	return true
}

// blockedBy возвращает первую упавшую или пропущенную зависимость.
func (r *record) blockedBy(node *engine.Node) (*domain.Step, bool) {
	for _, dep := range node.DependsOn {
		switch dep.Step.Status {
		case domain.StepStatusFailed, domain.StepStatusSkipped:
			return dep.Step, true
		}
	}
	return nil, false
}
