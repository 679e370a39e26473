package model

import "fmt"

// Core domain types shared by the engine, the store, and the API layer.
// Wire names are snake_case to match the engine's JSON contract.

// Truck is the container every plan packs into. Y is the vertical axis.
type Truck struct {
	W         float64 `json:"w"`
	H         float64 `json:"h"`
	D         float64 `json:"d"`
	MaxWeight float64 `json:"max_weight"`
}

// Volume returns w*h*d.
func (t Truck) Volume() float64 { return t.W * t.H * t.D }

// Box is a single item to place.
type Box struct {
	ID       string  `json:"id"`
	W        float64 `json:"w"`
	H        float64 `json:"h"`
	D        float64 `json:"d"`
	Weight   float64 `json:"weight"`
	Priority int     `json:"priority"`
}

// Volume returns w*h*d.
func (b Box) Volume() float64 { return b.W * b.H * b.D }

// Placement is the final pose of a placed box. (W,H,D) may be any axis
// permutation of the input dimensions.
type Placement struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
	W  float64 `json:"w"`
	H  float64 `json:"h"`
	D  float64 `json:"d"`
}

// PackResult is the outcome of packing one ordering of boxes.
type PackResult struct {
	Placed      []Placement `json:"placed"`
	Unplaced    []string    `json:"unplaced"`
	UsedVolume  float64     `json:"used_volume"`
	TotalVolume float64     `json:"total_volume"`
	Utilization float64     `json:"utilization"`
	TotalWeight float64     `json:"total_weight"`
}

// Metrics is the aggregate block returned to API clients.
type Metrics struct {
	UsedVolume  float64 `json:"used_volume"`
	TotalVolume float64 `json:"total_volume"`
	Utilization float64 `json:"utilization"`
	TotalWeight float64 `json:"total_weight"`
}

// MetricsOf extracts the metrics block from a pack result.
func MetricsOf(r PackResult) Metrics {
	return Metrics{
		UsedVolume:  r.UsedVolume,
		TotalVolume: r.TotalVolume,
		Utilization: r.Utilization,
		TotalWeight: r.TotalWeight,
	}
}

// Params are the GA knobs as supplied by the caller, pre-clamp. Pointers
// distinguish "omitted" from zero.
type Params struct {
	Population   *int     `json:"population,omitempty"`
	Generations  *int     `json:"generations,omitempty"`
	MutationRate *float64 `json:"mutation_rate,omitempty"`
	Seed         *uint32  `json:"seed,omitempty"`
}

// BoxIn is the request-side box shape. `sku` is accepted as a fallback id
// field; weight and priority default when omitted.
type BoxIn struct {
	ID       string   `json:"id,omitempty"`
	SKU      string   `json:"sku,omitempty"`
	W        float64  `json:"w"`
	H        float64  `json:"h"`
	D        float64  `json:"d"`
	Weight   *float64 `json:"weight,omitempty"`
	Priority *int     `json:"priority,omitempty"`
}

// ToBox normalizes a request box into the engine shape.
func (b BoxIn) ToBox() (Box, error) {
	id := b.ID
	if id == "" {
		id = b.SKU
	}
	if id == "" {
		return Box{}, fmt.Errorf("box requires id or sku")
	}
	if b.W <= 0 || b.H <= 0 || b.D <= 0 {
		return Box{}, fmt.Errorf("box %s: dimensions must be positive", id)
	}
	weight := 1.0
	if b.Weight != nil {
		weight = *b.Weight
	}
	if weight < 0 {
		return Box{}, fmt.Errorf("box %s: weight must be >= 0", id)
	}
	priority := 1
	if b.Priority != nil {
		priority = *b.Priority
	}
	return Box{ID: id, W: b.W, H: b.H, D: b.D, Weight: weight, Priority: priority}, nil
}

// TruckIn is the request-side truck shape; missing fields take the fleet
// defaults (see sim.NormalizeTruck).
type TruckIn struct {
	W         *float64 `json:"w,omitempty"`
	H         *float64 `json:"h,omitempty"`
	D         *float64 `json:"d,omitempty"`
	MaxWeight *float64 `json:"max_weight,omitempty"`
}

// OptimizeRequest is the body of POST /v1/optimize. Either dataset_id or
// an ad-hoc truck+boxes payload.
type OptimizeRequest struct {
	DatasetID string   `json:"dataset_id,omitempty"`
	Truck     *TruckIn `json:"truck,omitempty"`
	Boxes     []BoxIn  `json:"boxes,omitempty"`
	Params    *Params  `json:"params,omitempty"`
}

// SimulateRequest is the body of POST /v1/simulate.
type SimulateRequest struct {
	NumSKUs           *int     `json:"num_skus,omitempty"`
	Seed              *int64   `json:"seed,omitempty"`
	Truck             *TruckIn `json:"truck,omitempty"`
	PreviousDatasetID string   `json:"previous_dataset_id,omitempty"`
}

// SKU is a synthetic item stored in a dataset. The id lives in the `sku`
// field, mirroring the simulator's output shape.
type SKU struct {
	SKU      string  `json:"sku"`
	W        float64 `json:"w"`
	H        float64 `json:"h"`
	D        float64 `json:"d"`
	Weight   float64 `json:"weight"`
	Priority int     `json:"priority"`
}

// Dataset is a persisted simulation: one truck plus its SKUs.
type Dataset struct {
	ID        string `json:"dataset_id"`
	TenantID  string `json:"tenant_id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	Truck     Truck  `json:"truck"`
	SKUs      []SKU  `json:"skus"`
}

// DatasetSummary is the listing shape; SKU payloads stay in the store.
type DatasetSummary struct {
	ID        string `json:"dataset_id"`
	Count     int    `json:"count"`
	CreatedAt string `json:"created_at,omitempty"`
}

// OriginalDims echoes the input dimensions of an enriched placement so the
// caller can tell which orientation the placer chose.
type OriginalDims struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
	D float64 `json:"d"`
}

// PlacedOut is a placement enriched with input metadata for clients that
// render details without holding a second copy of the dataset.
type PlacedOut struct {
	Placement
	Weight   *float64      `json:"weight,omitempty"`
	Priority *int          `json:"priority,omitempty"`
	SKU      string        `json:"sku,omitempty"`
	Original *OriginalDims `json:"original,omitempty"`
}

// LoadPlan is a persisted optimization outcome.
type LoadPlan struct {
	ID        string      `json:"plan_id"`
	TenantID  string      `json:"tenant_id,omitempty"`
	DatasetID string      `json:"dataset_id,omitempty"`
	CreatedAt string      `json:"created_at,omitempty"`
	Truck     Truck       `json:"truck"`
	Placed    []PlacedOut `json:"placed"`
	Unplaced  []string    `json:"unplaced"`
	Metrics   Metrics     `json:"metrics"`
}

// SubscriptionRequest registers a webhook endpoint for plan events.
type SubscriptionRequest struct {
	TenantID string   `json:"tenant_id,omitempty"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

// Subscription is a stored webhook subscription.
type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenant_id"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
