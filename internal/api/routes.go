package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Metrics(h.metrics),
		Logging(h.logger),
	)

	// Deployments
	mux.Handle("POST /api/v1/deployments", chain(http.HandlerFunc(h.CreateDeployment)))
	mux.Handle("GET /api/v1/deployments", chain(http.HandlerFunc(h.ListDeployments)))
	mux.Handle("GET /api/v1/deployments/{id}", chain(http.HandlerFunc(h.GetDeployment)))
	mux.Handle("GET /api/v1/deployments/{id}/steps", chain(http.HandlerFunc(h.ListDeploymentSteps)))
	mux.Handle("GET /api/v1/deployments/{id}/audit", chain(http.HandlerFunc(h.ListDeploymentAudit)))
	mux.Handle("POST /api/v1/deployments/{id}/cancel", chain(http.HandlerFunc(h.CancelDeployment)))

	// Plans (dry-run)
	mux.Handle("POST /api/v1/plans", chain(http.HandlerFunc(h.CreatePlan)))

	// Schedules
	mux.Handle("GET /api/v1/schedules", chain(http.HandlerFunc(h.ListSchedules)))
}
