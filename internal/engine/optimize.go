// Package engine implements the truck-loading optimizer: a deterministic
// greedy placer evaluated inside a genetic-algorithm search over box
// orderings.
package engine

import "github.com/John-Fajardo-Calle/VECTOR-LOAD/internal/model"

// Engine-facing defaults applied when the caller omits a knob.
const (
	DefaultPopulation   = 40
	DefaultGenerations  = 40
	DefaultMutationRate = 0.08
	DefaultSeed         = uint32(12345)
	DefaultMaxWeight    = 12000.0
)

// Optimize applies parameter defaults and runs the GA. A truck with a zero
// weight cap is treated as "unspecified" and gets the fleet default.
func Optimize(truck model.Truck, boxes []model.Box, params model.Params) model.PackResult {
	if truck.MaxWeight == 0 {
		truck.MaxWeight = DefaultMaxWeight
	}
	population := DefaultPopulation
	if params.Population != nil {
		population = *params.Population
	}
	generations := DefaultGenerations
	if params.Generations != nil {
		generations = *params.Generations
	}
	mutationRate := DefaultMutationRate
	if params.MutationRate != nil {
		mutationRate = *params.MutationRate
	}
	seed := DefaultSeed
	if params.Seed != nil {
		seed = *params.Seed
	}
	return OptimizeGA(truck, boxes, population, generations, mutationRate, seed)
}
