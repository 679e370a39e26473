package engine

import (
	"math"
	"sort"

	"github.com/John-Fajardo-Calle/VECTOR-LOAD/internal/model"
)

const (
	eps                = 1e-8
	minSupportRatio    = 0.90   // >= 90% of base area must be supported
	maxStackMultiplier = 6.0    // max load proportional to box weight
	maxPressure        = 2500.0 // kg per m^2 (simple crush proxy)
	maxCandidates      = 350
)

// aabb is an axis-aligned box: lower-front-left origin plus extents.
type aabb struct {
	x, y, z float64
	w, h, d float64
}

// candidate is a lower-front-left anchor where a future box may sit.
type candidate struct {
	x, y, z float64
}

// placedState tracks a committed placement plus its load bookkeeping.
type placedState struct {
	box       aabb
	id        string
	weight    float64
	maxLoad   float64
	loadOnTop float64
}

// appliedLoad records one speculative load delta so losing trials roll back.
type appliedLoad struct {
	idx   int
	added float64
}

func intersects(a, b aabb) bool {
	sepX := a.x+a.w <= b.x || b.x+b.w <= a.x
	sepY := a.y+a.h <= b.y || b.y+b.h <= a.y
	sepZ := a.z+a.d <= b.z || b.z+b.d <= a.z
	return !(sepX || sepY || sepZ)
}

func insideTruck(t model.Truck, b aabb) bool {
	return b.x >= 0 && b.y >= 0 && b.z >= 0 &&
		b.x+b.w <= t.W && b.y+b.h <= t.H && b.z+b.d <= t.D
}

func overlap1D(a0, a1, b0, b1 float64) float64 {
	lo := math.Max(a0, b0)
	hi := math.Min(a1, b1)
	return math.Max(0, hi-lo)
}

func overlapAreaXZ(top, bottom aabb) float64 {
	ox := overlap1D(top.x, top.x+top.w, bottom.x, bottom.x+bottom.w)
	oz := overlap1D(top.z, top.z+top.d, bottom.z, bottom.z+bottom.d)
	return ox * oz
}

func pointInOverlapXZ(px, pz float64, top, bottom aabb) bool {
	x0 := math.Max(top.x, bottom.x)
	x1 := math.Min(top.x+top.w, bottom.x+bottom.w)
	z0 := math.Max(top.z, bottom.z)
	z1 := math.Min(top.z+top.d, bottom.z+bottom.d)
	return px+eps >= x0 && px-eps <= x1 && pz+eps >= z0 && pz-eps <= z1
}

// maxLoadFor caps capacity by BOTH a weight-proportional heuristic and a
// simple pressure proxy; the stricter one wins.
func maxLoadFor(weight, baseArea float64) float64 {
	byWeight := weight * maxStackMultiplier
	byPressure := baseArea * maxPressure
	return math.Max(eps, math.Min(byWeight, byPressure))
}

// supportOkAndApplyLoad checks the floor/centroid/area/crush rules for a
// trial box and, when it passes, applies the per-supporter load shares.
// Deltas are recorded in applied so the caller can roll them back.
func supportOkAndApplyLoad(c aabb, weight float64, placed []placedState, applied *[]appliedLoad) bool {
	if c.y <= eps {
		return true // floor carries everything
	}

	baseArea := math.Max(eps, c.w*c.d)
	cx := c.x + c.w/2
	cz := c.z + c.d/2

	type supporter struct {
		idx  int
		area float64
	}

	supportedArea := 0.0
	centroidSupported := false
	var supports []supporter

	for i := range placed {
		s := &placed[i]
		topY := s.box.y + s.box.h
		if math.Abs(topY-c.y) > 1e-6 {
			continue
		}
		area := overlapAreaXZ(c, s.box)
		if area <= eps {
			continue
		}
		supportedArea += area
		supports = append(supports, supporter{idx: i, area: area})
		if !centroidSupported && pointInOverlapXZ(cx, cz, c, s.box) {
			centroidSupported = true
		}
	}

	if !centroidSupported {
		return false
	}
	if supportedArea+1e-9 < minSupportRatio*baseArea {
		return false
	}

	// Crush limits per supporter, load split by area share.
	for _, sp := range supports {
		share := math.Min(1, math.Max(0, sp.area/baseArea))
		added := weight * share
		if placed[sp.idx].loadOnTop+added > placed[sp.idx].maxLoad+1e-9 {
			return false
		}
	}

	for _, sp := range supports {
		share := math.Min(1, math.Max(0, sp.area/baseArea))
		added := weight * share
		placed[sp.idx].loadOnTop += added
		*applied = append(*applied, appliedLoad{idx: sp.idx, added: added})
	}
	return true
}

func rollbackLoads(placed []placedState, applied []appliedLoad) {
	for _, a := range applied {
		placed[a.idx].loadOnTop -= a.added
	}
}

func quantize(v float64) int64 { return int64(math.Round(v * 100000.0)) }

// uniqueCandidates dedupes by quantized coordinate triple, then, if over the
// cap, stably keeps the lowest (y, z, x) points. Called once per item; the
// truncation order is policy, not optimization.
func uniqueCandidates(cands []candidate) []candidate {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		qa := [3]int64{quantize(a.x), quantize(a.y), quantize(a.z)}
		qb := [3]int64{quantize(b.x), quantize(b.y), quantize(b.z)}
		if qa[0] != qb[0] {
			return qa[0] < qb[0]
		}
		if qa[1] != qb[1] {
			return qa[1] < qb[1]
		}
		return qa[2] < qb[2]
	})
	out := cands[:0]
	for i, c := range cands {
		if i > 0 {
			p := out[len(out)-1]
			if quantize(c.x) == quantize(p.x) && quantize(c.y) == quantize(p.y) && quantize(c.z) == quantize(p.z) {
				continue
			}
		}
		out = append(out, c)
	}
	if len(out) > maxCandidates {
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i], out[j]
			if a.y != b.y {
				return a.y < b.y
			}
			if a.z != b.z {
				return a.z < b.z
			}
			return a.x < b.x
		})
		out = out[:maxCandidates]
	}
	return out
}

// betterOrigin prefers lower Y (gravity), then lower Z, then lower X.
func betterOrigin(a, b aabb) bool {
	if a.y != b.y {
		return a.y < b.y
	}
	if a.z != b.z {
		return a.z < b.z
	}
	return a.x < b.x
}

// PackByOrder deterministically packs boxes[order[0]], boxes[order[1]], ...
// into the truck. It never fails: boxes that fit nowhere end up in Unplaced.
func PackByOrder(truck model.Truck, boxes []model.Box, order []int) model.PackResult {
	result := model.PackResult{
		Placed:   []model.Placement{},
		Unplaced: []string{},
	}
	for _, b := range boxes {
		result.TotalVolume += b.Volume()
	}

	placed := make([]placedState, 0, len(order))
	candidates := make([]candidate, 0, len(order)*3+8)
	candidates = append(candidates, candidate{0, 0, 0})

	addCandidate := func(x, y, z float64) {
		if x < -eps || y < -eps || z < -eps {
			return
		}
		candidates = append(candidates, candidate{x, y, z})
	}

	collidesAny := func(a aabb) bool {
		for i := range placed {
			if intersects(a, placed[i].box) {
				return true
			}
		}
		return false
	}

	remainingWeight := truck.MaxWeight

	for _, idx := range order {
		box := boxes[idx]

		if box.Weight > remainingWeight+1e-9 {
			result.Unplaced = append(result.Unplaced, box.ID)
			continue
		}

		// All six axis-aligned orientations.
		rots := [6][3]float64{
			{box.W, box.H, box.D},
			{box.W, box.D, box.H},
			{box.H, box.W, box.D},
			{box.H, box.D, box.W},
			{box.D, box.W, box.H},
			{box.D, box.H, box.W},
		}

		candidates = uniqueCandidates(candidates)

		found := false
		var best aabb
		var bestLoads []appliedLoad

		for _, cand := range candidates {
			for _, r := range rots {
				trial := aabb{cand.x, cand.y, cand.z, r[0], r[1], r[2]}

				if !insideTruck(truck, trial) {
					continue
				}
				if collidesAny(trial) {
					continue
				}

				var applied []appliedLoad
				if !supportOkAndApplyLoad(trial, box.Weight, placed, &applied) {
					rollbackLoads(placed, applied)
					continue
				}

				if !found || betterOrigin(trial, best) {
					if found {
						rollbackLoads(placed, bestLoads)
					}
					found = true
					best = trial
					bestLoads = applied
				} else {
					rollbackLoads(placed, applied)
				}
			}
		}

		if !found {
			result.Unplaced = append(result.Unplaced, box.ID)
			continue
		}

		// bestLoads stays applied on the supporters.
		placed = append(placed, placedState{
			box:     best,
			id:      box.ID,
			weight:  box.Weight,
			maxLoad: maxLoadFor(box.Weight, best.w*best.d),
		})

		result.Placed = append(result.Placed, model.Placement{
			ID: box.ID, X: best.x, Y: best.y, Z: best.z, W: best.w, H: best.h, D: best.d,
		})
		result.UsedVolume += best.w * best.h * best.d
		result.TotalWeight += box.Weight
		remainingWeight -= box.Weight

		// Extreme points around the placed box: right, back, top.
		addCandidate(best.x+best.w, best.y, best.z)
		addCandidate(best.x, best.y, best.z+best.d)
		addCandidate(best.x, best.y+best.h, best.z)
	}

	if tv := truck.Volume(); tv > 0 {
		result.Utilization = result.UsedVolume / tv
	}
	return result
}
