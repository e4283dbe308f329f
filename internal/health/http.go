package health

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Handler serves the quick health endpoint. It reports the last check and
// answers 503 when the system is critical.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Last()
		if report == nil {
			report = c.Check(r.Context())
		}

		code := http.StatusOK
		if report.OverallStatus == StatusCritical {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{
			"status":    report.OverallStatus,
			"timestamp": report.Timestamp,
			"summary":   c.Summary(),
		})
	}
}

// DetailedHandler runs a full check and returns the report together with
// recent alerts. The alerts query parameter bounds the alert history.
func (c *Checker) DetailedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if v, err := strconv.Atoi(r.URL.Query().Get("alerts")); err == nil && v > 0 {
			limit = v
		}
		report := c.Check(r.Context())

		code := http.StatusOK
		if report.OverallStatus == StatusCritical {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{
			"report":        report,
			"alert_history": c.AlertHistory(limit),
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
