package cli

import (
	"context"
	"fmt"
	"time"

	"shelltree/internal/core/session"
	"shelltree/internal/engine/parser"
	"shelltree/internal/shared/util"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}

type HealthService struct {
	manager *session.Manager
	started time.Time
}

func NewHealthService(manager *session.Manager) *HealthService {
	return &HealthService{manager: manager, started: time.Now()}
}

func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]string),
	}

	if s.manager == nil {
		status.Status = "degraded"
		status.Components["sessions"] = "missing"
	} else {
		status.Components["sessions"] = fmt.Sprintf("ok (%d open)", len(s.manager.List()))
	}

	// Probe the grammar and parser pool.
	if _, err := parser.ParseOnce(ctx, []byte("true\n")); err != nil {
		status.Status = "degraded"
		status.Components["parser"] = err.Error()
	} else {
		status.Components["parser"] = "ok"
	}

	status.Components["heap_alloc_mb"] = fmt.Sprintf("%d", util.GetHeapAllocMB())
	status.Components["uptime"] = time.Since(s.started).Round(time.Second).String()
	return status
}
