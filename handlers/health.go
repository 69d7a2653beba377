package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/akinalp/mqvi-gateway/pubsub"
)

// HealthChecker, fan-out adapter'ın sağlık durumu.
type HealthChecker interface {
	Health(ctx context.Context) pubsub.State
}

// ConnectionCounter, process-local bağlantı sayısı.
type ConnectionCounter interface {
	ConnectionCount() int
}

// HealthResponse, GET /api/health gövdesi.
type HealthResponse struct {
	Status      pubsub.State `json:"status"`
	InstanceID  string       `json:"instance_id"`
	Connections int          `json:"connections"`
	Timestamp   time.Time    `json:"timestamp"`
	Version     string       `json:"version"`
}

// HealthHandler, load balancer health check'i.
type HealthHandler struct {
	checker     HealthChecker
	connections ConnectionCounter
	instanceID  string
	version     string
	timeout     time.Duration
}

// NewHealthHandler, constructor.
func NewHealthHandler(checker HealthChecker, connections ConnectionCounter, instanceID, version string) *HealthHandler {
	return &HealthHandler{
		checker:     checker,
		connections: connections,
		instanceID:  instanceID,
		version:     version,
		timeout:     2 * time.Second,
	}
}

// Health godoc
// GET /api/health
// unhealthy → 503; degraded hâlâ 200 döner (yerel teslimat çalışıyor).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{
		Status:      h.checker.Health(ctx),
		InstanceID:  h.instanceID,
		Connections: h.connections.ConnectionCount(),
		Timestamp:   time.Now().UTC(),
		Version:     h.version,
	}

	status := http.StatusOK
	if resp.Status == pubsub.StateUnhealthy {
		status = http.StatusServiceUnavailable
	}

	// Probe'lar zarfsız düz JSON bekler.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
