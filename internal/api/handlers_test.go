package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	s, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(body)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_test")
	req.Header.Set("X-Role", "admin")
	handler(rr, req)
	return rr
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestOptimizeAdHocTrivial(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{
		"truck": map[string]any{"w": 10, "h": 10, "d": 10, "max_weight": 100},
		"boxes": []map[string]any{{"id": "A", "w": 2, "h": 2, "d": 2, "weight": 1}},
	}
	rr := postJSON(t, s.OptimizeHandler, "/v1/optimize", body)
	if rr.Code != 200 {
		t.Fatalf("optimize: %d %s", rr.Code, rr.Body.String())
	}
	var res struct {
		PlanID string `json:"plan_id"`
		Placed []struct {
			ID string `json:"id"`
		} `json:"placed"`
		Unplaced []string `json:"unplaced"`
		Metrics  struct {
			Utilization float64 `json:"utilization"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.PlanID == "" || len(res.Placed) != 1 || len(res.Unplaced) != 0 {
		t.Fatalf("unexpected result: %s", rr.Body.String())
	}
	if res.Metrics.Utilization != 0.008 {
		t.Fatalf("utilization = %v, want 0.008", res.Metrics.Utilization)
	}
}

func TestOptimizeSKUFallbackID(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{
		"truck": map[string]any{"w": 10, "h": 10, "d": 10},
		"boxes": []map[string]any{{"sku": "SKU-1", "w": 1, "h": 1, "d": 1}},
	}
	rr := postJSON(t, s.OptimizeHandler, "/v1/optimize", body)
	if rr.Code != 200 {
		t.Fatalf("optimize: %d %s", rr.Code, rr.Body.String())
	}
	var res struct {
		Placed []struct {
			ID  string `json:"id"`
			SKU string `json:"sku"`
		} `json:"placed"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &res)
	if len(res.Placed) != 1 || res.Placed[0].ID != "SKU-1" {
		t.Fatalf("sku fallback failed: %s", rr.Body.String())
	}
	if res.Placed[0].SKU != "SKU-1" {
		t.Fatalf("placement should carry sku metadata: %s", rr.Body.String())
	}
}

func TestOptimizeValidation(t *testing.T) {
	s := newTestServer(t)
	cases := []map[string]any{
		{"boxes": []map[string]any{{"id": "a", "w": -1, "h": 1, "d": 1}}}, // bad dims
		{"boxes": []map[string]any{{"w": 1, "h": 1, "d": 1}}},             // no id/sku
		{"boxes": []map[string]any{{"id": "a", "w": 1, "h": 1, "d": 1}}, "params": map[string]any{"mutation_rate": 2}},
		{"truck": map[string]any{"w": -4}, "boxes": []map[string]any{{"id": "a", "w": 1, "h": 1, "d": 1}}},
	}
	for i, c := range cases {
		rr := postJSON(t, s.OptimizeHandler, "/v1/optimize", c)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("case %d: got %d, want 400: %s", i, rr.Code, rr.Body.String())
		}
	}
}

func TestOptimizeEmptyBoxesYieldsZeroResult(t *testing.T) {
	s := newTestServer(t)
	rr := postJSON(t, s.OptimizeHandler, "/v1/optimize", map[string]any{"boxes": []any{}})
	if rr.Code != 200 {
		t.Fatalf("empty boxes: %d %s", rr.Code, rr.Body.String())
	}
	var res struct {
		Placed   []any    `json:"placed"`
		Unplaced []string `json:"unplaced"`
		Metrics  struct {
			UsedVolume  float64 `json:"used_volume"`
			TotalVolume float64 `json:"total_volume"`
			Utilization float64 `json:"utilization"`
			TotalWeight float64 `json:"total_weight"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Placed) != 0 || len(res.Unplaced) != 0 {
		t.Fatalf("expected empty lists: %s", rr.Body.String())
	}
	if res.Metrics.UsedVolume != 0 || res.Metrics.TotalVolume != 0 || res.Metrics.Utilization != 0 || res.Metrics.TotalWeight != 0 {
		t.Fatalf("expected zero metrics: %s", rr.Body.String())
	}
}

func TestOptimizeDatasetNotFound(t *testing.T) {
	s := newTestServer(t)
	rr := postJSON(t, s.OptimizeHandler, "/v1/optimize", map[string]any{"dataset_id": "nope"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", rr.Code)
	}
}

func TestOptimizeRequiresRole(t *testing.T) {
	s := newTestServer(t)
	b, _ := json.Marshal(map[string]any{"boxes": []map[string]any{{"id": "a", "w": 1, "h": 1, "d": 1}}})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/optimize", bytes.NewReader(b))
	req.Header.Set("X-Tenant-Id", "t_test")
	req.Header.Set("X-Role", "viewer")
	s.OptimizeHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("viewer should be forbidden, got %d", rr.Code)
	}
}

func TestSimulateThenOptimizeDataset(t *testing.T) {
	s := newTestServer(t)
	rr := postJSON(t, s.SimulateHandler, "/v1/simulate", map[string]any{"num_skus": 30, "seed": 7})
	if rr.Code != 200 {
		t.Fatalf("simulate: %d %s", rr.Code, rr.Body.String())
	}
	var simRes struct {
		DatasetID string `json:"dataset_id"`
		Count     int    `json:"count"`
		Preview   []any  `json:"preview"`
		Truck     struct {
			MaxWeight float64 `json:"max_weight"`
		} `json:"truck"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &simRes); err != nil {
		t.Fatalf("decode simulate: %v", err)
	}
	if simRes.DatasetID == "" || simRes.Count != 30 || len(simRes.Preview) != 25 {
		t.Fatalf("simulate result: %s", rr.Body.String())
	}
	if simRes.Truck.MaxWeight != 12000 {
		t.Fatalf("default truck max_weight: %v", simRes.Truck.MaxWeight)
	}

	rr = postJSON(t, s.OptimizeHandler, "/v1/optimize", map[string]any{
		"dataset_id": simRes.DatasetID,
		"params":     map[string]any{"population": 6, "generations": 2, "seed": 42},
	})
	if rr.Code != 200 {
		t.Fatalf("optimize dataset: %d %s", rr.Code, rr.Body.String())
	}
	var optRes struct {
		PlanID   string   `json:"plan_id"`
		Placed   []any    `json:"placed"`
		Unplaced []string `json:"unplaced"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &optRes); err != nil {
		t.Fatalf("decode optimize: %v", err)
	}
	if len(optRes.Placed)+len(optRes.Unplaced) != 30 {
		t.Fatalf("partition: %d + %d != 30", len(optRes.Placed), len(optRes.Unplaced))
	}

	// The plan should now be retrievable.
	rr2 := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/plans/"+optRes.PlanID, nil)
	req.Header.Set("X-Tenant-Id", "t_test")
	s.PlanByIDHandler(rr2, req)
	if rr2.Code != 200 {
		t.Fatalf("get plan: %d", rr2.Code)
	}
}

func TestOptimizeDeterministicAcrossRequests(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{
		"truck": map[string]any{"w": 5, "h": 5, "d": 5, "max_weight": 100},
		"boxes": []map[string]any{
			{"id": "a", "w": 2, "h": 1, "d": 3, "weight": 8},
			{"id": "b", "w": 1, "h": 2, "d": 1, "weight": 3},
			{"id": "c", "w": 3, "h": 1, "d": 2, "weight": 12},
		},
		"params": map[string]any{"seed": 7},
	}
	rr1 := postJSON(t, s.OptimizeHandler, "/v1/optimize", body)
	rr2 := postJSON(t, s.OptimizeHandler, "/v1/optimize", body)
	if rr1.Code != 200 || rr2.Code != 200 {
		t.Fatalf("codes: %d %d", rr1.Code, rr2.Code)
	}
	type out struct {
		Placed   []map[string]any `json:"placed"`
		Unplaced []string         `json:"unplaced"`
		Metrics  map[string]any   `json:"metrics"`
	}
	var o1, o2 out
	_ = json.Unmarshal(rr1.Body.Bytes(), &o1)
	_ = json.Unmarshal(rr2.Body.Bytes(), &o2)
	b1, _ := json.Marshal(o1)
	b2, _ := json.Marshal(o2)
	if !bytes.Equal(b1, b2) {
		t.Fatalf("same seed produced different plans:\n%s\n%s", b1, b2)
	}
}

func TestResetDeletesDatasets(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 2; i++ {
		rr := postJSON(t, s.SimulateHandler, "/v1/simulate", map[string]any{"num_skus": 5, "seed": int64(i)})
		if rr.Code != 200 {
			t.Fatalf("simulate: %d", rr.Code)
		}
	}
	rr := postJSON(t, s.ResetHandler, "/v1/reset", map[string]any{})
	if rr.Code != 200 {
		t.Fatalf("reset: %d", rr.Code)
	}
	var res struct {
		Deleted int `json:"deleted"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &res)
	if res.Deleted != 2 {
		t.Fatalf("deleted = %d, want 2", res.Deleted)
	}

	rr2 := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/datasets", nil)
	req.Header.Set("X-Tenant-Id", "t_test")
	s.DatasetsHandler(rr2, req)
	var list struct {
		Items []any `json:"items"`
	}
	_ = json.Unmarshal(rr2.Body.Bytes(), &list)
	if len(list.Items) != 0 {
		t.Fatalf("datasets remain after reset: %d", len(list.Items))
	}
}

func TestSimulatePreviousDatasetCleanup(t *testing.T) {
	s := newTestServer(t)
	rr := postJSON(t, s.SimulateHandler, "/v1/simulate", map[string]any{"num_skus": 5, "seed": 1})
	var first struct {
		DatasetID string `json:"dataset_id"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &first)

	rr = postJSON(t, s.SimulateHandler, "/v1/simulate", map[string]any{
		"num_skus": 5, "seed": 2, "previous_dataset_id": first.DatasetID,
	})
	if rr.Code != 200 {
		t.Fatalf("second simulate: %d", rr.Code)
	}

	rr2 := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/datasets", nil)
	req.Header.Set("X-Tenant-Id", "t_test")
	s.DatasetsHandler(rr2, req)
	var list struct {
		Items []any `json:"items"`
	}
	_ = json.Unmarshal(rr2.Body.Bytes(), &list)
	if len(list.Items) != 1 {
		t.Fatalf("previous dataset should be gone, have %d", len(list.Items))
	}
}

func TestOptimizeEnqueuesWebhook(t *testing.T) {
	s := newTestServer(t)
	rr := postJSON(t, s.SubscriptionsHandler, "/v1/subscriptions", map[string]any{
		"url": "https://example.invalid/webhook", "events": []string{"plan.completed"}, "secret": "shh",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create sub: %d %s", rr.Code, rr.Body.String())
	}

	rr = postJSON(t, s.OptimizeHandler, "/v1/optimize", map[string]any{
		"boxes": []map[string]any{{"id": "a", "w": 1, "h": 1, "d": 1}},
	})
	if rr.Code != 200 {
		t.Fatalf("optimize: %d", rr.Code)
	}

	rr2 := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/webhook-deliveries?limit=5", nil)
	req.Header.Set("X-Tenant-Id", "t_test")
	req.Header.Set("X-Role", "admin")
	s.WebhookDeliveriesHandler(rr2, req)
	if rr2.Code != 200 {
		t.Fatalf("deliveries: %d", rr2.Code)
	}
	var dres struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(rr2.Body.Bytes(), &dres); err != nil {
		t.Fatalf("decode deliveries: %v", err)
	}
	if len(dres.Items) == 0 {
		t.Fatalf("expected at least one delivery")
	}
	if et, ok := dres.Items[0]["event_type"].(string); !ok || et != "plan.completed" {
		t.Fatalf("event_type = %v", dres.Items[0]["event_type"])
	}
}

func TestOptimizePublishesPlanEvent(t *testing.T) {
	s := newTestServer(t)
	rr := postJSON(t, s.SimulateHandler, "/v1/simulate", map[string]any{"num_skus": 3, "seed": 5})
	var simRes struct {
		DatasetID string `json:"dataset_id"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &simRes)

	ch := s.Broker.Subscribe("dataset:" + simRes.DatasetID)

	rr = postJSON(t, s.OptimizeHandler, "/v1/optimize", map[string]any{"dataset_id": simRes.DatasetID})
	if rr.Code != 200 {
		t.Fatalf("optimize: %d", rr.Code)
	}

	select {
	case evt := <-ch:
		if evt.Type != "plan.completed" {
			t.Fatalf("event type = %s", evt.Type)
		}
		if pid, _ := evt.Data["plan_id"].(string); pid == "" {
			t.Fatalf("event missing plan_id: %+v", evt.Data)
		}
	default:
		t.Fatalf("no event published")
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	s := newTestServer(t)
	rr := postJSON(t, s.SubscriptionsHandler, "/v1/subscriptions", map[string]any{
		"url": "https://example.invalid", "events": []string{"*"}, "secret": "x",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d", rr.Code)
	}
	var sub struct {
		ID     string `json:"id"`
		Secret string `json:"secret"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &sub)
	if sub.Secret != "" {
		t.Fatalf("secret must not echo back")
	}

	rr2 := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/subscriptions", nil)
	req.Header.Set("X-Tenant-Id", "t_test")
	s.SubscriptionsHandler(rr2, req)
	var list struct {
		Items []any `json:"items"`
	}
	_ = json.Unmarshal(rr2.Body.Bytes(), &list)
	if len(list.Items) != 1 {
		t.Fatalf("list: %d items", len(list.Items))
	}

	rr3 := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil)
	req.Header.Set("X-Tenant-Id", "t_test")
	req.Header.Set("X-Role", "admin")
	s.SubscriptionByIDHandler(rr3, req)
	if rr3.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rr3.Code)
	}
}

func TestOpenAPIServedAsJSON(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.OpenAPIHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/docs/openapi.json", nil))
	if rr.Code != 200 {
		t.Fatalf("openapi: %d", rr.Code)
	}
	var spec map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &spec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if spec["openapi"] == nil || spec["paths"] == nil {
		t.Fatalf("spec missing fields: %v", spec)
	}
}
