// Package webhooks delivers plan lifecycle events to subscribed endpoints.
package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/John-Fajardo-Calle/VECTOR-LOAD/internal/store"
)

// EventPlanCompleted fires after an optimization run is persisted.
const EventPlanCompleted = "plan.completed"

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit enqueues one delivery per matching subscription. Delivery itself is
// the worker's job; Emit never blocks on the network.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil || len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":        fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"type":      eventType,
		"tenant_id": tenantID,
		"ts":        time.Now().UTC().Format(time.RFC3339),
		"data":      data,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		_, _ = p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, s.Secret, body)
	}
}
