// Package sim generates reproducible synthetic datasets for demo and load
// testing, and normalizes partial truck payloads into the engine shape.
package sim

import (
	"fmt"
	"math/rand"

	"github.com/John-Fajardo-Calle/VECTOR-LOAD/internal/model"
)

// Fleet defaults for a standard box trailer, dimensions in meters.
const (
	DefaultTruckW    = 2.4
	DefaultTruckH    = 2.6
	DefaultTruckD    = 12.0
	DefaultMaxWeight = 12000.0
)

// NormalizeTruck fills missing truck fields with the fleet defaults so
// partial payloads stay forgiving for callers.
func NormalizeTruck(in *model.TruckIn) model.Truck {
	t := model.Truck{W: DefaultTruckW, H: DefaultTruckH, D: DefaultTruckD, MaxWeight: DefaultMaxWeight}
	if in == nil {
		return t
	}
	if in.W != nil {
		t.W = *in.W
	}
	if in.H != nil {
		t.H = *in.H
	}
	if in.D != nil {
		t.D = *in.D
	}
	if in.MaxWeight != nil {
		t.MaxWeight = *in.MaxWeight
	}
	return t
}

// GenerateSKUs returns n random SKUs, reproducible for a given seed.
// Dimensions are in meters, weights in kg.
func GenerateSKUs(n int, seed int64) []model.SKU {
	rng := rand.New(rand.NewSource(seed))
	skus := make([]model.SKU, 0, n)
	for i := 0; i < n; i++ {
		skus = append(skus, model.SKU{
			SKU:      fmt.Sprintf("SKU-%05d", i),
			W:        uniform(rng, 0.1, 0.8),
			H:        uniform(rng, 0.05, 0.6),
			D:        uniform(rng, 0.1, 1.2),
			Weight:   uniform(rng, 0.2, 40.0),
			Priority: 1 + rng.Intn(5),
		})
	}
	return skus
}

// Boxes converts dataset SKUs into engine boxes; the sku field is the id.
func Boxes(skus []model.SKU) []model.Box {
	out := make([]model.Box, len(skus))
	for i, s := range skus {
		out[i] = model.Box{ID: s.SKU, W: s.W, H: s.H, D: s.D, Weight: s.Weight, Priority: s.Priority}
	}
	return out
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
