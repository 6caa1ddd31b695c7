package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// HealthProbe is one dependency checked by /health.
type HealthProbe interface {
	// Name identifies the probe in the response (e.g., "archive_dir").
	Name() string

	// Check returns an error when the dependency is unusable. It must
	// respect the context deadline.
	Check(ctx context.Context) error
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

var errProbeTimeout = errors.New("health check timed out")

// HandleHealth runs all registered probes concurrently under a 2 second
// deadline. It returns 200 when every probe passes and 503 when any fails or
// times out.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	var mu sync.Mutex
	results := make([]error, len(s.HealthProbes))
	for i := range results {
		results[i] = errProbeTimeout
	}

	var wg sync.WaitGroup
	for i, probe := range s.HealthProbes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := runProbe(ctx, probe)
			mu.Lock()
			results[i] = err
			mu.Unlock()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()

	resp := healthResponse{Status: "healthy", Components: make(map[string]componentStatus, len(results))}
	status := http.StatusOK
	for i, probe := range s.HealthProbes {
		if err := results[i]; err != nil {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			resp.Components[probe.Name()] = componentStatus{Status: "unhealthy", Message: err.Error()}
			continue
		}
		resp.Components[probe.Name()] = componentStatus{Status: "healthy"}
	}
	JSON(w, r, status, resp)
}

func runProbe(ctx context.Context, p HealthProbe) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return p.Check(ctx)
}
