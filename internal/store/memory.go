package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/John-Fajardo-Calle/VECTOR-LOAD/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu         sync.Mutex
	datasets   map[string]model.Dataset    // id -> dataset
	dsByTen    map[string][]string         // tenant -> dataset ids, insertion order
	plans      map[string]model.LoadPlan   // id -> plan
	plansByTen map[string][]string         // tenant -> plan ids, insertion order
	subs       map[string][]model.Subscription
	deliveries map[string]*memDelivery
	delByTen   map[string][]string
}

func NewMemory() *Memory {
	return &Memory{
		datasets:   map[string]model.Dataset{},
		dsByTen:    map[string][]string{},
		plans:      map[string]model.LoadPlan{},
		plansByTen: map[string][]string{},
		subs:       map[string][]model.Subscription{},
		deliveries: map[string]*memDelivery{},
		delByTen:   map[string][]string{},
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics state.
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func (m *Memory) SaveDataset(ctx context.Context, tenantID string, ds model.Dataset) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ds.ID == "" {
		ds.ID = "dataset_" + uuid.New().String()
	}
	ds.TenantID = tenantID
	if ds.CreatedAt == "" {
		ds.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if _, exists := m.datasets[ds.ID]; !exists {
		m.dsByTen[tenantID] = append(m.dsByTen[tenantID], ds.ID)
	}
	m.datasets[ds.ID] = ds
	return ds.ID, nil
}

func (m *Memory) GetDataset(ctx context.Context, tenantID, id string) (model.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, ok := m.datasets[id]
	if !ok || ds.TenantID != tenantID {
		return model.Dataset{}, ErrNotFound
	}
	return ds, nil
}

func (m *Memory) ListDatasets(ctx context.Context, tenantID, cursor string, limit int) ([]model.DatasetSummary, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.dsByTen[tenantID]
	start := cursorIndex(ids, cursor)
	if limit <= 0 {
		limit = 100
	}
	out := []model.DatasetSummary{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		ds := m.datasets[ids[i]]
		out = append(out, model.DatasetSummary{ID: ds.ID, Count: len(ds.SKUs), CreatedAt: ds.CreatedAt})
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) DeleteDataset(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, ok := m.datasets[id]
	if !ok || ds.TenantID != tenantID {
		return ErrNotFound
	}
	delete(m.datasets, id)
	m.dsByTen[tenantID] = removeID(m.dsByTen[tenantID], id)
	return nil
}

func (m *Memory) ResetDatasets(ctx context.Context, tenantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.dsByTen[tenantID]
	for _, id := range ids {
		delete(m.datasets, id)
	}
	m.dsByTen[tenantID] = nil
	return len(ids), nil
}

func (m *Memory) SavePlan(ctx context.Context, tenantID string, plan model.LoadPlan) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if plan.ID == "" {
		plan.ID = "plan_" + uuid.New().String()
	}
	plan.TenantID = tenantID
	if plan.CreatedAt == "" {
		plan.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if _, exists := m.plans[plan.ID]; !exists {
		m.plansByTen[tenantID] = append(m.plansByTen[tenantID], plan.ID)
	}
	m.plans[plan.ID] = plan
	return plan.ID, nil
}

func (m *Memory) GetPlan(ctx context.Context, tenantID, id string) (model.LoadPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok || p.TenantID != tenantID {
		return model.LoadPlan{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.LoadPlan, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.plansByTen[tenantID]
	start := cursorIndex(ids, cursor)
	if limit <= 0 {
		limit = 100
	}
	out := []model.LoadPlan{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.plans[ids[i]])
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := model.Subscription{
		ID:       "sub_" + uuid.New().String(),
		TenantID: req.TenantID,
		URL:      req.URL,
		Events:   append([]string(nil), req.Events...),
		Secret:   req.Secret,
	}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], sub)
	return sub, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[tenantID]
	if limit <= 0 {
		limit = 100
	}
	start := 0
	if cursor != "" {
		for i, s := range subs {
			if s.ID == cursor {
				start = i + 1
				break
			}
		}
	}
	out := []model.Subscription{}
	var next string
	for i := start; i < len(subs) && len(out) < limit; i++ {
		out = append(out, subs[i])
		next = subs[i].ID
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[tenantID]
	for i, s := range subs {
		if s.ID == id {
			m.subs[tenantID] = append(subs[:i], subs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := "whd_" + uuid.New().String()
	d := &memDelivery{
		WebhookDelivery: WebhookDelivery{
			ID:             id,
			TenantID:       tenantID,
			SubscriptionID: subscriptionID,
			EventType:      eventType,
			URL:            url,
			Secret:         secret,
			Payload:        payload,
			Status:         "pending",
		},
		NextAttemptAt: time.Now(),
	}
	m.deliveries[id] = d
	m.delByTen[tenantID] = append(m.delByTen[tenantID], id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, tenIDs := range m.delByTen {
		for _, id := range tenIDs {
			d := m.deliveries[id]
			if d == nil || d.Status != "pending" || d.NextAttemptAt.After(now) {
				continue
			}
			out = append(out, d.WebhookDelivery)
			if len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
	} else if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.delByTen[tenantID]
	start := cursorIndex(ids, cursor)
	if limit <= 0 {
		limit = 100
	}
	out := []map[string]any{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		d := m.deliveries[ids[i]]
		if d == nil {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		out = append(out, map[string]any{
			"id":            d.ID,
			"event_type":    d.EventType,
			"url":           d.URL,
			"status":        d.Status,
			"attempts":      d.Attempts,
			"last_error":    d.LastError,
			"response_code": d.ResponseCode,
			"latency_ms":    d.LatencyMs,
		})
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok || d.TenantID != tenantID {
		return ErrNotFound
	}
	d.Status = "pending"
	d.NextAttemptAt = time.Now()
	return nil
}

func cursorIndex(ids []string, cursor string) int {
	if cursor == "" {
		return 0
	}
	for i, id := range ids {
		if id == cursor {
			return i + 1
		}
	}
	return 0
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
