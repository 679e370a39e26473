package api

import (
	"fmt"

	"github.com/John-Fajardo-Calle/VECTOR-LOAD/internal/model"
)

// validateOptimizeRequest checks shapes only. Empty boxes are legal: the
// engine returns an all-zeros result. dataset_id takes precedence over an
// ad-hoc payload when both are present.
func validateOptimizeRequest(req *model.OptimizeRequest) error {
	if req.Truck != nil {
		if v := req.Truck.W; v != nil && *v <= 0 {
			return fmt.Errorf("truck.w must be > 0")
		}
		if v := req.Truck.H; v != nil && *v <= 0 {
			return fmt.Errorf("truck.h must be > 0")
		}
		if v := req.Truck.D; v != nil && *v <= 0 {
			return fmt.Errorf("truck.d must be > 0")
		}
		if v := req.Truck.MaxWeight; v != nil && *v < 0 {
			return fmt.Errorf("truck.max_weight must be >= 0")
		}
	}
	if p := req.Params; p != nil {
		if p.Population != nil && *p.Population < 0 {
			return fmt.Errorf("population must be >= 0")
		}
		if p.Generations != nil && *p.Generations < 0 {
			return fmt.Errorf("generations must be >= 0")
		}
		if p.MutationRate != nil && (*p.MutationRate < 0 || *p.MutationRate > 1) {
			return fmt.Errorf("mutation_rate must be in [0,1]")
		}
	}
	return nil
}

func validateSimulateRequest(req *model.SimulateRequest) error {
	if req.NumSKUs != nil && *req.NumSKUs <= 0 {
		return fmt.Errorf("num_skus must be > 0")
	}
	return nil
}
