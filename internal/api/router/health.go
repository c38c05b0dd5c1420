package router

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/agentdesk/internal/http/httpjson"
)

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

type healthResponse struct {
	Status string            `json:"status"`
	Time   time.Time         `json:"time"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthHandler runs every configured check in parallel. Any failure turns
// the response into 503 with status "degraded".
func HealthHandler(checks map[string]HealthCheck, timeout time.Duration) http.HandlerFunc {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		var (
			mu       sync.Mutex
			wg       sync.WaitGroup
			degraded bool
		)
		results := make(map[string]string, len(names))
		for _, name := range names {
			wg.Add(1)
			go func(name string, check HealthCheck) {
				defer wg.Done()
				status := "ok"
				if err := check(ctx); err != nil {
					status = "error: " + err.Error()
				}
				mu.Lock()
				defer mu.Unlock()
				results[name] = status
				if status != "ok" {
					degraded = true
				}
			}(name, checks[name])
		}
		wg.Wait()

		resp := healthResponse{Status: "ok", Time: time.Now().UTC(), Checks: results}
		code := http.StatusOK
		if degraded {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		httpjson.Write(w, code, resp)
	}
}
