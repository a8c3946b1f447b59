package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

type checkResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// NewBaseMuxWithReady returns a mux preloaded with /healthz (liveness,
// always ok) and /readyz, which runs each check with a 2s timeout and
// reports per-dependency status and latency as JSON.
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		results := map[string]checkResult{}
		ready := true
		for _, check := range checks {
			if check.Check == nil {
				continue
			}
			name := check.Name
			if name == "" {
				name = "dependency"
			}
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			started := time.Now()
			err := check.Check(ctx)
			cancel()
			res := checkResult{Status: "ok", LatencyMS: time.Since(started).Milliseconds()}
			if err != nil {
				res.Status = "fail"
				res.Error = err.Error()
				ready = false
			}
			results[name] = res
		}

		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ready":  ready,
			"checks": results,
		})
	})
	return mux
}
