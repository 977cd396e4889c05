package engine

import (
	"fmt"
	"sort"

	"github.com/shaiso/Deployer/internal/domain"
)

// Node — узел в графе шагов.
type Node struct {
	// Step — шаг плана.
	Step *domain.Step

	// ID — идентификатор узла (совпадает со Step.ID).
	ID string

	// Index — позиция шага в плане.
	Index int

	// InDegree — количество входящих рёбер (зависимостей).
	InDegree int

	// DependsOn — узлы, от которых зависит этот узел.
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node
}

// Graph — направленный ациклический граф шагов деплоя.
type Graph struct {
	// Nodes — все узлы графа (stepID → Node).
	Nodes map[string]*Node

	// Plan — узлы в порядке плана.
	Plan []*Node

	// RootNodes — узлы без зависимостей (точки входа), в порядке плана.
	RootNodes []*Node

	// Order — топологически отсортированный список узлов.
	Order []*Node
}

// BuildGraph строит граф из шагов плана.
//
// Проверяет уникальность ID, существование зависимостей и отсутствие
// циклов (алгоритм Кана). При цикле возвращает *DependencyCycleError.
func BuildGraph(steps []*domain.Step) (*Graph, error) {
	g := &Graph{
		Nodes:     make(map[string]*Node, len(steps)),
		Plan:      make([]*Node, 0, len(steps)),
		RootNodes: make([]*Node, 0),
	}

	// Первый проход: создаём все узлы
	for i, step := range steps {
		if err := g.addNode(step, i); err != nil {
			return nil, err
		}
	}

	// Второй проход: связываем зависимости
	for _, node := range g.Plan {
		if err := g.linkDependencies(node); err != nil {
			return nil, err
		}
	}

	g.findRootNodes()

	order, err := g.topologicalSort()
	if err != nil {
		return nil, err
	}
	g.Order = order

	return g, nil
}

func (g *Graph) addNode(step *domain.Step, index int) error {
	if step.ID == "" {
		return NewValidationError("", "id", fmt.Sprintf("step %d has empty ID", index), ErrEmptyStepID)
	}
	if _, exists := g.Nodes[step.ID]; exists {
		return NewValidationError(step.ID, "id",
			fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStepID)
	}

	node := &Node{
		Step:       step,
		ID:         step.ID,
		Index:      index,
		DependsOn:  make([]*Node, 0, len(step.DependsOn)),
		Dependents: make([]*Node, 0),
	}
	g.Nodes[step.ID] = node
	g.Plan = append(g.Plan, node)
	return nil
}

func (g *Graph) linkDependencies(node *Node) error {
	for _, depID := range node.Step.DependsOn {
		if depID == node.ID {
			return NewValidationError(node.ID, "depends_on",
				"step depends on itself", ErrSelfDependency)
		}
		dep, ok := g.Nodes[depID]
		if !ok {
			return NewValidationError(node.ID, "depends_on",
				fmt.Sprintf("depends on unknown step: %s", depID), ErrMissingDependency)
		}
		g.addEdge(dep, node)
	}
	return nil
}

// addEdge добавляет ребро from → to (to зависит от from).
// Дубликаты в depends_on не увеличивают InDegree повторно.
func (g *Graph) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.ID == from.ID {
			return
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// findRootNodes находит узлы без входящих рёбер.
func (g *Graph) findRootNodes() {
	g.RootNodes = g.RootNodes[:0]
	for _, node := range g.Plan {
		if node.InDegree == 0 {
			g.RootNodes = append(g.RootNodes, node)
		}
	}
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Возвращает *DependencyCycleError, если обнаружен цикл.
func (g *Graph) topologicalSort() ([]*Node, error) {
	// Копируем inDegree, чтобы не модифицировать оригинал
	inDegree := make(map[string]int, len(g.Nodes))
	for id, node := range g.Nodes {
		inDegree[id] = node.InDegree
	}

	queue := make([]*Node, len(g.RootNodes))
	copy(queue, g.RootNodes)

	order := make([]*Node, 0, len(g.Nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, dependent := range node.Dependents {
			inDegree[dependent.ID]--
			if inDegree[dependent.ID] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		return nil, &DependencyCycleError{StepIDs: g.cycleMembers(inDegree)}
	}

	return order, nil
}

// cycleMembers возвращает шаги, оставшиеся после алгоритма Кана, без тех,
// что просто стоят ниже цикла. Для этого остаток обрезается с конца:
// узел без оставшихся зависимых не может лежать на цикле.
func (g *Graph) cycleMembers(inDegree map[string]int) []string {
	remaining := make(map[string]bool)
	for id, d := range inDegree {
		if d > 0 {
			remaining[id] = true
		}
	}

	for changed := true; changed; {
		changed = false
		for id := range remaining {
			hasDependent := false
			for _, dep := range g.Nodes[id].Dependents {
				if remaining[dep.ID] {
					hasDependent = true
					break
				}
			}
			if !hasDependent {
				delete(remaining, id)
				changed = true
			}
		}
	}

	ids := make([]string, 0, len(remaining))
	for id := range remaining {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetNode возвращает узел по ID.
func (g *Graph) GetNode(id string) *Node {
	return g.Nodes[id]
}

// Size возвращает количество узлов.
func (g *Graph) Size() int {
	return len(g.Nodes)
}

// Steps возвращает шаги в порядке плана.
func (g *Graph) Steps() []*domain.Step {
	steps := make([]*domain.Step, 0, len(g.Plan))
	for _, node := range g.Plan {
		steps = append(steps, node.Step)
	}
	return steps
}
