package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/John-Fajardo-Calle/VECTOR-LOAD/internal/api"
	"github.com/John-Fajardo-Calle/VECTOR-LOAD/internal/metrics"
)

func main() {
	srv, err := api.NewServer()
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	mux := http.NewServeMux()

	// Datasets & simulation
	mux.HandleFunc("/v1/simulate", srv.SimulateHandler)
	mux.HandleFunc("/v1/datasets", srv.DatasetsHandler)
	mux.HandleFunc("/v1/datasets/", srv.DatasetByIDHandler) // includes /events/stream, /events/ws
	mux.HandleFunc("/v1/reset", srv.ResetHandler)

	// Optimization & plans
	mux.HandleFunc("/v1/optimize", srv.OptimizeHandler)
	mux.HandleFunc("/v1/plans", srv.PlansIndexHandler)
	mux.HandleFunc("/v1/plans/", srv.PlanByIDHandler) // includes /events/stream, /events/ws

	// Subscriptions & webhook admin
	mux.HandleFunc("/v1/subscriptions", srv.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", srv.SubscriptionByIDHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries", srv.WebhookDeliveriesHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries/", srv.WebhookDeliveryRetryHandler)

	// Health, metrics, docs, debug
	mux.HandleFunc("/healthz", srv.HealthHandler)
	mux.HandleFunc("/readyz", srv.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/v1/docs/openapi.json", srv.OpenAPIHandler)
	mux.HandleFunc("/v1/debug", srv.DebugJSON)

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	handler := api.WithRateLimit(api.WithObservability(mux))
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("API listening on %s", addr)
	if srv.Pub != nil {
		worker := srv.NewWebhookWorker()
		worker.Start()
	}
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
