// Package health probes the service dependencies and keeps a bounded history
// of component status and alerts.
package health

import "time"

// Status is the health state of a component or of the whole system.
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusWarning     Status = "warning"
	StatusCritical    Status = "critical"
	StatusUnknown     Status = "unknown"
	StatusUnavailable Status = "unavailable"
)

// Gauge maps a status onto the value exported by the component gauge.
func (s Status) Gauge() float64 {
	switch s {
	case StatusHealthy:
		return 0
	case StatusWarning:
		return 1
	case StatusCritical:
		return 2
	case StatusUnavailable:
		return 4
	default:
		return 3
	}
}

// ComponentType groups components in reports.
type ComponentType string

const (
	TypeDatabase    ComponentType = "database"
	TypeCache       ComponentType = "cache"
	TypeAPIExternal ComponentType = "api_external"
	TypeMLModel     ComponentType = "ml_model"
	TypeSystem      ComponentType = "system"
	TypeService     ComponentType = "service"
)

// Metric is one observation of a component, with optional thresholds.
type Metric struct {
	Name              string   `json:"name"`
	Value             float64  `json:"value"`
	Unit              string   `json:"unit"`
	ThresholdWarning  *float64 `json:"threshold_warning,omitempty"`
	ThresholdCritical *float64 `json:"threshold_critical,omitempty"`
	Status            Status   `json:"status"`
	Message           string   `json:"message,omitempty"`
}

// Threshold builds a metric whose status is derived from warning and
// critical limits. When inverted, lower values are worse.
func Threshold(name string, value float64, unit string, warning, critical float64, inverted bool) Metric {
	return Metric{
		Name:              name,
		Value:             value,
		Unit:              unit,
		ThresholdWarning:  &warning,
		ThresholdCritical: &critical,
		Status:            MetricStatus(value, warning, critical, inverted),
	}
}

// Flag builds a boolean metric reporting a failed probe.
func Flag(name string, status Status, message string) Metric {
	return Metric{Name: name, Value: 0, Unit: "boolean", Status: status, Message: message}
}

// MetricStatus classifies value against its thresholds.
func MetricStatus(value, warning, critical float64, inverted bool) Status {
	if inverted {
		switch {
		case value <= critical:
			return StatusCritical
		case value <= warning:
			return StatusWarning
		}
		return StatusHealthy
	}
	switch {
	case value >= critical:
		return StatusCritical
	case value >= warning:
		return StatusWarning
	}
	return StatusHealthy
}

// Worst returns the most severe metric status, or healthy.
func Worst(metrics []Metric) Status {
	out := StatusHealthy
	for _, m := range metrics {
		switch m.Status {
		case StatusCritical:
			return StatusCritical
		case StatusWarning:
			out = StatusWarning
		}
	}
	return out
}

// ComponentHealth is the outcome of one check.
type ComponentHealth struct {
	Name             string         `json:"name"`
	Type             ComponentType  `json:"type"`
	Status           Status         `json:"status"`
	ResponseTime     time.Duration  `json:"response_time"`
	LastCheck        time.Time      `json:"last_check"`
	Metrics          []Metric       `json:"metrics"`
	Details          map[string]any `json:"details,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	UptimePercentage float64        `json:"uptime_percentage"`
}

// Report is the result of a full health check.
type Report struct {
	OverallStatus      Status            `json:"overall_status"`
	Components         []ComponentHealth `json:"components"`
	SystemMetrics      []Metric          `json:"system_metrics"`
	Timestamp          time.Time         `json:"timestamp"`
	TotalComponents    int               `json:"total_components"`
	HealthyComponents  int               `json:"healthy_components"`
	WarningComponents  int               `json:"warning_components"`
	CriticalComponents int               `json:"critical_components"`
	Alerts             []string          `json:"alerts"`
}

// Overall folds component statuses: critical if any is critical, warning if
// any is warning, unknown or unavailable, healthy otherwise.
func Overall(statuses ...Status) Status {
	out := StatusHealthy
	for _, s := range statuses {
		switch s {
		case StatusCritical:
			return StatusCritical
		case StatusWarning, StatusUnknown, StatusUnavailable:
			out = StatusWarning
		}
	}
	return out
}

// HistoryPoint is one entry of a component history.
type HistoryPoint struct {
	Timestamp        time.Time     `json:"timestamp"`
	Status           Status        `json:"status"`
	ResponseTime     time.Duration `json:"response_time"`
	UptimePercentage float64       `json:"uptime_percentage"`
}

// AlertLevel is CRITICAL or WARNING.
type AlertLevel string

const (
	AlertCritical AlertLevel = "CRITICAL"
	AlertWarning  AlertLevel = "WARNING"
)

// Alert is a recorded alert message.
type Alert struct {
	Timestamp time.Time  `json:"timestamp"`
	Message   string     `json:"message"`
	Level     AlertLevel `json:"level"`
}

// Summary is a cheap view of the last check.
type Summary struct {
	Status            string    `json:"status"`
	Message           string    `json:"message,omitempty"`
	HealthyComponents int       `json:"healthy_components,omitempty"`
	TotalComponents   int       `json:"total_components,omitempty"`
	ActiveAlerts      int       `json:"active_alerts"`
	LastCheck         time.Time `json:"last_check,omitzero"`
}
