package store

import (
	"context"
	"errors"
	"time"

	"github.com/John-Fajardo-Calle/VECTOR-LOAD/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Datasets
	SaveDataset(ctx context.Context, tenantID string, ds model.Dataset) (string, error)
	GetDataset(ctx context.Context, tenantID, id string) (model.Dataset, error)
	ListDatasets(ctx context.Context, tenantID, cursor string, limit int) ([]model.DatasetSummary, string, error)
	DeleteDataset(ctx context.Context, tenantID, id string) error
	ResetDatasets(ctx context.Context, tenantID string) (int, error)

	// Load plans
	SavePlan(ctx context.Context, tenantID string, plan model.LoadPlan) (string, error)
	GetPlan(ctx context.Context, tenantID, id string) (model.LoadPlan, error)
	ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.LoadPlan, string, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
	RetryWebhookDelivery(ctx context.Context, tenantID, id string) error
}

// WebhookDelivery is one queued outbound webhook call.
type WebhookDelivery struct {
	ID             string
	TenantID       string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}

var ErrNotFound = errors.New("not found")
