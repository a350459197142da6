package action

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrNoSteps         = errors.New("at least one step is required")
	ErrTooManySteps    = errors.New("plan exceeds the step limit")
	ErrToolRequired    = errors.New("step tool is required")
	ErrUnknownModule   = errors.New("step module is not recognized")
	ErrCycle           = errors.New("step dependencies contain a cycle")
	ErrInvalidRef      = errors.New("step dependency references invalid index")
	ErrDependencyUnmet = errors.New("step dependency did not complete successfully")
)

// ValidatePlan checks a plan for structural correctness before execution:
// step count within limit, tools and modules present, and dependencies
// forming a DAG. Step IDs are normalized to their index form.
func ValidatePlan(steps []Step, maxSteps int) error {
	if len(steps) == 0 {
		return ErrNoSteps
	}
	if maxSteps > 0 && len(steps) > maxSteps {
		return fmt.Errorf("%d steps: %w", len(steps), ErrTooManySteps)
	}

	for i := range steps {
		steps[i].ID = strconv.Itoa(i)
		if steps[i].Tool == "" {
			return fmt.Errorf("step %d: %w", i, ErrToolRequired)
		}
		if !steps[i].Module.Known() {
			return fmt.Errorf("step %d module %q: %w", i, steps[i].Module, ErrUnknownModule)
		}
	}

	return validateDAG(steps)
}

// validateDAG checks that step dependencies form a valid DAG using Kahn's algorithm.
func validateDAG(steps []Step) error {
	n := len(steps)
	inDegree := make([]int, n)
	adj := make([][]int, n)

	for i, s := range steps {
		for _, dep := range s.DependsOn {
			idx, err := strconv.Atoi(dep)
			if err != nil || idx < 0 || idx >= n {
				return fmt.Errorf("step %d depends on %q: %w", i, dep, ErrInvalidRef)
			}
			if idx == i {
				return fmt.Errorf("step %d depends on itself: %w", i, ErrCycle)
			}
			adj[idx] = append(adj[idx], i)
			inDegree[i]++
		}
	}

	// Kahn's algorithm: topological sort
	queue := make([]int, 0, n)
	for i, d := range inDegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}

	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++
		for _, neighbor := range adj[node] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	if visited != n {
		return ErrCycle
	}
	return nil
}

// UnmetDependencies returns the IDs of dependencies that have not produced
// a successful result yet. An empty slice means the step may execute.
func UnmetDependencies(step Step, results []StepResult) []string {
	var unmet []string
	for _, dep := range step.DependsOn {
		r := ResultByStep(results, dep)
		if r == nil || !r.Success {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}
