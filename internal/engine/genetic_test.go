package engine

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/John-Fajardo-Calle/VECTOR-LOAD/internal/model"
)

func TestOptimizeGAEmptyInput(t *testing.T) {
	truck := model.Truck{W: 10, H: 10, D: 10, MaxWeight: 100}
	r := OptimizeGA(truck, nil, 40, 40, 0.08, 12345)
	if len(r.Placed) != 0 || len(r.Unplaced) != 0 {
		t.Fatalf("expected empty result, got %+v", r)
	}
	if r.UsedVolume != 0 || r.TotalVolume != 0 || r.Utilization != 0 || r.TotalWeight != 0 {
		t.Fatalf("expected zero scalars, got %+v", r)
	}
}

func TestOptimizeGASingleBox(t *testing.T) {
	truck := model.Truck{W: 10, H: 10, D: 10, MaxWeight: 100}
	boxes := []model.Box{{ID: "A", W: 2, H: 2, D: 2, Weight: 1, Priority: 1}}
	r := OptimizeGA(truck, boxes, 40, 40, 0.08, 12345)
	if len(r.Placed) != 1 || r.Placed[0].Y != 0 {
		t.Fatalf("single fitting box must land on the floor: %+v", r)
	}
}

func TestOptimizeGAOverweightBoxNeverPlaced(t *testing.T) {
	truck := model.Truck{W: 10, H: 10, D: 10, MaxWeight: 5}
	boxes := []model.Box{{ID: "A", W: 1, H: 1, D: 1, Weight: 10, Priority: 1}}
	r := OptimizeGA(truck, boxes, 10, 5, 0.08, 7)
	if len(r.Placed) != 0 {
		t.Fatalf("overweight box placed: %+v", r.Placed)
	}
	if len(r.Unplaced) != 1 || r.Unplaced[0] != "A" {
		t.Fatalf("unplaced = %v", r.Unplaced)
	}
}

func TestOptimizeGADeterministicForSeed(t *testing.T) {
	truck := model.Truck{W: 5, H: 5, D: 5, MaxWeight: 500}
	boxes := []model.Box{
		{ID: "a", W: 2, H: 1, D: 3, Weight: 8, Priority: 2},
		{ID: "b", W: 1, H: 2, D: 1, Weight: 3, Priority: 5},
		{ID: "c", W: 3, H: 1, D: 2, Weight: 12, Priority: 1},
		{ID: "d", W: 1, H: 1, D: 1, Weight: 1, Priority: 3},
		{ID: "e", W: 2, H: 2, D: 2, Weight: 6, Priority: 4},
	}
	r1 := OptimizeGA(truck, boxes, 12, 8, 0.2, 7)
	r2 := OptimizeGA(truck, boxes, 12, 8, 0.2, 7)
	if len(r1.Placed) != len(r2.Placed) || len(r1.Unplaced) != len(r2.Unplaced) {
		t.Fatalf("results differ in shape")
	}
	for i := range r1.Placed {
		if r1.Placed[i] != r2.Placed[i] {
			t.Fatalf("placement %d differs: %+v vs %+v", i, r1.Placed[i], r2.Placed[i])
		}
	}
	for i := range r1.Unplaced {
		if r1.Unplaced[i] != r2.Unplaced[i] {
			t.Fatalf("unplaced order differs")
		}
	}
	if r1.Utilization != r2.Utilization || r1.TotalWeight != r2.TotalWeight {
		t.Fatalf("metrics differ")
	}
}

func TestOptimizeGAWorkloadClampCompletes(t *testing.T) {
	// n > 250 triggers the aggressive cap (pop<=10, gen<=6); the run must
	// finish promptly even with large requested parameters.
	truck := model.Truck{W: 2, H: 2, D: 2, MaxWeight: 100}
	boxes := make([]model.Box, 300)
	for i := range boxes {
		boxes[i] = model.Box{ID: fmt.Sprintf("b%03d", i), W: 1, H: 1, D: 1, Weight: 0.1, Priority: 1}
	}
	r := OptimizeGA(truck, boxes, 40, 40, 0.08, 12345)
	if len(r.Placed)+len(r.Unplaced) != len(boxes) {
		t.Fatalf("partition violated on large instance")
	}
}

func TestScoreResult(t *testing.T) {
	r := model.PackResult{Utilization: 0.5, Unplaced: []string{"a", "b"}}
	if got := scoreResult(r); got != 49 {
		t.Fatalf("score = %v, want 49", got)
	}
}

func TestOrderedCrossoverProducesPermutation(t *testing.T) {
	truck := model.Truck{W: 10, H: 10, D: 10, MaxWeight: 100}
	boxes := make([]model.Box, 20)
	for i := range boxes {
		boxes[i] = model.Box{ID: string(rune('a' + i)), W: 1, H: 1, D: 1, Weight: 1, Priority: 1}
	}
	// OX is exercised indirectly: every generation's children must still be
	// valid permutations or the partition invariant breaks.
	r := OptimizeGA(truck, boxes, 8, 6, 0.5, 99)
	if len(r.Placed)+len(r.Unplaced) != len(boxes) {
		t.Fatalf("children degenerated into non-permutations")
	}
	ids := map[string]int{}
	for _, p := range r.Placed {
		ids[p.ID]++
	}
	for _, id := range r.Unplaced {
		ids[id]++
	}
	for id, n := range ids {
		if n != 1 {
			t.Fatalf("id %s appears %d times", id, n)
		}
	}
}

func TestHeuristicSeedOrdering(t *testing.T) {
	boxes := []model.Box{
		{ID: "small-hi", W: 1, H: 1, D: 1, Weight: 1, Priority: 9},
		{ID: "big", W: 3, H: 3, D: 3, Weight: 1, Priority: 1},
		{ID: "mid-a", W: 2, H: 2, D: 2, Weight: 1, Priority: 1},
		{ID: "mid-b", W: 2, H: 2, D: 2, Weight: 1, Priority: 5},
	}
	order := []int{0, 1, 2, 3}
	sort.SliceStable(order, func(a, b int) bool {
		va, vb := boxes[order[a]].Volume(), boxes[order[b]].Volume()
		if va != vb {
			return va > vb
		}
		return boxes[order[a]].Priority > boxes[order[b]].Priority
	})
	want := []int{1, 3, 2, 0} // big, then mid by priority desc, then small
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("heuristic order = %v, want %v", order, want)
		}
	}
}

func TestRandStreamIsReproducible(t *testing.T) {
	// The GA's determinism contract rests on math/rand being stable for a
	// fixed seed across runs and platforms.
	a := rand.New(rand.NewSource(12345))
	b := rand.New(rand.NewSource(12345))
	for i := 0; i < 100; i++ {
		if a.Float64() != b.Float64() || a.Intn(1000) != b.Intn(1000) {
			t.Fatalf("rand streams diverged at draw %d", i)
		}
	}
}
