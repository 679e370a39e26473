package engine

import (
	"math"
	"math/rand"
	"sort"

	"github.com/John-Fajardo-Calle/VECTOR-LOAD/internal/model"
)

// individual is one candidate ordering in the GA population.
type individual struct {
	order  []int
	score  float64
	result model.PackResult
}

// scoreResult ranks a packing: reward utilization, penalize unplaced boxes.
func scoreResult(r model.PackResult) float64 {
	return r.Utilization*100.0 - float64(len(r.Unplaced))*0.5
}

// OptimizeGA searches box orderings with a generational genetic algorithm
// and returns the best individual's packing. Deterministic for a given
// (inputs, seed): all randomness flows from one math/rand stream seeded
// with seed, and every tie-break is explicit.
func OptimizeGA(truck model.Truck, boxes []model.Box, population, generations int, mutationRate float64, seed uint32) model.PackResult {
	if len(boxes) == 0 {
		return model.PackResult{Placed: []model.Placement{}, Unplaced: []string{}}
	}

	rng := rand.New(rand.NewSource(int64(seed)))

	n := len(boxes)

	// Cap GA workload aggressively on large instances to keep the engine
	// responsive for interactive use.
	switch {
	case n > 250:
		population = min(population, 10)
		generations = min(generations, 6)
	case n > 150:
		population = min(population, 18)
		generations = min(generations, 12)
	default:
		population = min(population, 30)
		generations = min(generations, 25)
	}
	population = max(population, 4)
	generations = max(generations, 1)

	base := make([]int, n)
	for i := range base {
		base[i] = i
	}

	makeIndividual := func(shuffle bool) individual {
		ind := individual{order: append([]int(nil), base...)}
		if shuffle {
			rng.Shuffle(n, func(i, j int) { ind.order[i], ind.order[j] = ind.order[j], ind.order[i] })
		} else {
			// Heuristic seed: volume descending, ties by priority descending.
			sort.SliceStable(ind.order, func(a, b int) bool {
				va := boxes[ind.order[a]].Volume()
				vb := boxes[ind.order[b]].Volume()
				if math.Abs(va-vb) > 1e-12 {
					return va > vb
				}
				return boxes[ind.order[a]].Priority > boxes[ind.order[b]].Priority
			})
		}
		ind.result = PackByOrder(truck, boxes, ind.order)
		ind.score = scoreResult(ind.result)
		return ind
	}

	pop := make([]individual, 0, population)
	pop = append(pop, makeIndividual(false))
	for len(pop) < population {
		pop = append(pop, makeIndividual(true))
	}

	// Tournament selection (k=3), first winner kept on ties.
	selectParent := func() *individual {
		var best *individual
		for i := 0; i < 3; i++ {
			cand := &pop[rng.Intn(population)]
			if best == nil || cand.score > best.score {
				best = cand
			}
		}
		return best
	}

	crossover := func(a, b *individual) individual {
		// Ordered crossover (OX): keep a contiguous slice of parent a,
		// fill the rest in parent b's order.
		i := rng.Intn(n)
		j := rng.Intn(n)
		if i > j {
			i, j = j, i
		}

		child := make([]int, n)
		for k := range child {
			child[k] = -1
		}
		used := make([]bool, n)
		for k := i; k <= j; k++ {
			child[k] = a.order[k]
			used[child[k]] = true
		}

		write := 0
		for k := 0; k < n; k++ {
			gene := b.order[k]
			if used[gene] {
				continue
			}
			for write < n && child[write] != -1 {
				write++
			}
			if write < n {
				child[write] = gene
			}
		}
		return individual{order: child}
	}

	mutate := func(ind *individual) {
		// The uniform draw happens unconditionally so the stream position
		// stays fixed per child.
		if rng.Float64() > mutationRate {
			return
		}
		a := rng.Intn(n)
		b := rng.Intn(n)
		ind.order[a], ind.order[b] = ind.order[b], ind.order[a]
	}

	byScoreDesc := func(p []individual) {
		sort.SliceStable(p, func(i, j int) bool { return p[i].score > p[j].score })
	}

	for gen := 0; gen < generations; gen++ {
		byScoreDesc(pop)

		// Elitism: keep top 10%, at least one.
		elite := max(1, population/10)
		next := make([]individual, 0, population)
		next = append(next, pop[:elite]...)

		for len(next) < population {
			p1 := selectParent()
			p2 := selectParent()
			child := crossover(p1, p2)
			mutate(&child)
			child.result = PackByOrder(truck, boxes, child.order)
			child.score = scoreResult(child.result)
			next = append(next, child)
		}

		pop = next
	}

	byScoreDesc(pop)
	return pop[0].result
}
