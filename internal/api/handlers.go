package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/John-Fajardo-Calle/VECTOR-LOAD/internal/engine"
	"github.com/John-Fajardo-Calle/VECTOR-LOAD/internal/metrics"
	"github.com/John-Fajardo-Calle/VECTOR-LOAD/internal/model"
	"github.com/John-Fajardo-Calle/VECTOR-LOAD/internal/sim"
	"github.com/John-Fajardo-Calle/VECTOR-LOAD/internal/store"
	"github.com/John-Fajardo-Calle/VECTOR-LOAD/internal/webhooks"
)

const datasetPreviewSize = 25

// SimulateHandler handles POST /v1/simulate: generate and persist a
// synthetic dataset for later optimization.
func (s *Server) SimulateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateSimulateRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid simulate request", err.Error(), r.URL.Path)
		return
	}
	p := s.getPrincipal(r)

	n := 10000
	if req.NumSKUs != nil {
		n = *req.NumSKUs
	}
	seed := time.Now().UnixNano()
	if req.Seed != nil {
		seed = *req.Seed
	}

	// Best-effort cleanup keeps disk usage stable during iterative runs.
	if req.PreviousDatasetID != "" {
		_ = s.Store.DeleteDataset(r.Context(), p.Tenant, req.PreviousDatasetID)
	}

	truck := sim.NormalizeTruck(req.Truck)
	skus := sim.GenerateSKUs(n, seed)
	id, err := s.Store.SaveDataset(r.Context(), p.Tenant, model.Dataset{Truck: truck, SKUs: skus})
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save dataset failed", err.Error(), r.URL.Path)
		return
	}

	preview := skus
	if len(preview) > datasetPreviewSize {
		preview = preview[:datasetPreviewSize]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dataset_id": id,
		"truck":      truck,
		"count":      len(skus),
		"preview":    preview,
	})
}

// OptimizeHandler handles POST /v1/optimize: dataset-backed or ad-hoc.
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanOptimize() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	var req model.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateOptimizeRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
		return
	}

	var truck model.Truck
	var boxes []model.Box
	meta := map[string]model.BoxIn{}
	source := "adhoc"

	if req.DatasetID != "" {
		source = "dataset"
		ds, err := s.Store.GetDataset(r.Context(), p.Tenant, req.DatasetID)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Dataset not found", req.DatasetID, r.URL.Path)
			return
		}
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Load dataset failed", err.Error(), r.URL.Path)
			return
		}
		truck = ds.Truck
		boxes = sim.Boxes(ds.SKUs)
		for _, sku := range ds.SKUs {
			weight := sku.Weight
			priority := sku.Priority
			meta[sku.SKU] = model.BoxIn{SKU: sku.SKU, W: sku.W, H: sku.H, D: sku.D, Weight: &weight, Priority: &priority}
		}
	} else {
		truck = sim.NormalizeTruck(req.Truck)
		boxes = make([]model.Box, 0, len(req.Boxes))
		for _, bi := range req.Boxes {
			b, err := bi.ToBox()
			if err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid box", err.Error(), r.URL.Path)
				return
			}
			boxes = append(boxes, b)
			meta[b.ID] = bi
		}
	}

	var params model.Params
	if req.Params != nil {
		params = *req.Params
	}

	start := time.Now()
	result := engine.Optimize(truck, boxes, params)
	metrics.OptimizeRuns.WithLabelValues(source).Inc()
	metrics.OptimizeDuration.Observe(time.Since(start).Seconds())
	metrics.PlanUtilization.Observe(result.Utilization)

	plan := model.LoadPlan{
		DatasetID: req.DatasetID,
		Truck:     truck,
		Placed:    enrichPlacements(result.Placed, meta),
		Unplaced:  result.Unplaced,
		Metrics:   model.MetricsOf(result),
	}
	planID, err := s.Store.SavePlan(r.Context(), p.Tenant, plan)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save plan failed", err.Error(), r.URL.Path)
		return
	}

	evt := Event{Type: webhooks.EventPlanCompleted, Data: map[string]any{
		"plan_id":    planID,
		"dataset_id": req.DatasetID,
		"metrics":    plan.Metrics,
	}}
	s.Broker.Publish("plan:"+planID, evt)
	if req.DatasetID != "" {
		s.Broker.Publish("dataset:"+req.DatasetID, evt)
	}
	if s.Pub != nil {
		s.Pub.Emit(r.Context(), p.Tenant, webhooks.EventPlanCompleted, evt.Data)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"plan_id":  planID,
		"placed":   plan.Placed,
		"unplaced": plan.Unplaced,
		"metrics":  plan.Metrics,
	})
}

// enrichPlacements attaches input metadata to placements so clients can show
// details on click without a second copy of the dataset.
func enrichPlacements(placed []model.Placement, meta map[string]model.BoxIn) []model.PlacedOut {
	out := make([]model.PlacedOut, 0, len(placed))
	for _, pl := range placed {
		po := model.PlacedOut{Placement: pl}
		if m, ok := meta[pl.ID]; ok {
			po.Weight = m.Weight
			po.Priority = m.Priority
			po.SKU = m.SKU
			po.Original = &model.OriginalDims{W: m.W, H: m.H, D: m.D}
		}
		out = append(out, po)
	}
	return out
}

// PlansIndexHandler handles GET /v1/plans.
func (s *Server) PlansIndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListPlans(r.Context(), p.Tenant, cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List plans failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "next_cursor": next})
}

// PlanByIDHandler handles GET /v1/plans/{id} and /v1/plans/{id}/events/*.
func (s *Server) PlanByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/plans/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if len(parts) >= 3 && parts[1] == "events" {
		switch parts[2] {
		case "stream":
			s.streamSSE(w, r, "plan:"+id)
		case "ws":
			s.streamWS(w, r, "plan:"+id)
		default:
			writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		}
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	plan, err := s.Store.GetPlan(r.Context(), p.Tenant, id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Plan not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get plan failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// DatasetsHandler handles GET /v1/datasets.
func (s *Server) DatasetsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListDatasets(r.Context(), p.Tenant, cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List datasets failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "next_cursor": next})
}

// DatasetByIDHandler handles GET /v1/datasets/{id} and its event streams.
func (s *Server) DatasetByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/datasets/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if len(parts) >= 3 && parts[1] == "events" {
		switch parts[2] {
		case "stream":
			s.streamSSE(w, r, "dataset:"+id)
		case "ws":
			s.streamWS(w, r, "dataset:"+id)
		default:
			writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		}
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	ds, err := s.Store.GetDataset(r.Context(), p.Tenant, id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Dataset not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get dataset failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

// ResetHandler handles POST /v1/reset: delete every dataset for the tenant.
func (s *Server) ResetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	deleted, err := s.Store.ResetDatasets(r.Context(), p.Tenant)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Reset failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "deleted": deleted})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions.
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	switch r.Method {
	case http.MethodPost:
		if !p.IsAdmin() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
			return
		}
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events are required", r.URL.Path)
			return
		}
		if req.TenantID == "" {
			req.TenantID = p.Tenant
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		sub.Secret = ""
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		for i := range items {
			items[i].Secret = ""
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "next_cursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}.
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Subscription not found", id, r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries.
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, status, cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "next_cursor": next})
}

// WebhookDeliveryRetryHandler handles POST /v1/admin/webhook-deliveries/{id}/retry.
func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/")
	if !strings.HasSuffix(rest, "/retry") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	id := strings.TrimSuffix(rest, "/retry")
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Delivery not found", id, r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Retry failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "requeued"})
}

// HealthHandler handles GET /healthz.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler handles GET /readyz.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
