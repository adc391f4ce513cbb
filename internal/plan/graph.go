package plan

import (
	"fmt"

	"github.com/fentz26/greenlight/internal/models"
)

// Nodes live in an arena and reference each other by index, so the graph has
// no cyclic pointer structure and plans diff cheaply between runs.

// levelize assigns each task its DAG level using Kahn's algorithm. A task's
// level is the maximum of its category's cost floor and one past its deepest
// dependency, so explicit edges always dominate and cost ordering only ever
// pushes a task later.
func levelize(tasks []Task) ([][]int, error) {
	n := len(tasks)
	indeg := make([]int, n)
	adj := make([][]int, n)
	for i, t := range tasks {
		indeg[i] = len(t.DepIndexes)
		for _, dep := range t.DepIndexes {
			adj[dep] = append(adj[dep], i)
		}
	}

	levels := make([]int, n)
	ready := make([]int, 0, n)
	for i := range tasks {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}

	processed := 0
	for len(ready) > 0 {
		// FIFO pop keeps ordering consistent across runs.
		idx := ready[0]
		ready = ready[1:]
		processed++

		lvl := tasks[idx].Category.CostWeight()
		for _, dep := range tasks[idx].DepIndexes {
			if levels[dep] >= lvl {
				lvl = levels[dep] + 1
			}
		}
		levels[idx] = lvl

		for _, next := range adj[idx] {
			indeg[next]--
			if indeg[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	if processed != n {
		return nil, fmt.Errorf("%w: %d of %d tasks orderable", models.ErrCycle, processed, n)
	}

	maxLevel := 0
	for _, l := range levels {
		if l > maxLevel {
			maxLevel = l
		}
	}
	byLevel := make([][]int, maxLevel+1)
	for i, l := range levels {
		byLevel[l] = append(byLevel[l], i)
	}
	// Drop empty levels while preserving relative order.
	out := make([][]int, 0, len(byLevel))
	for _, lvl := range byLevel {
		if len(lvl) > 0 {
			out = append(out, lvl)
		}
	}
	return out, nil
}
