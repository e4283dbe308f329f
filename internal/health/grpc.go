package health

import (
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCReporter mirrors reports into a grpc.health.v1 server. The empty
// service name carries the overall status and every component is exposed
// under its own name.
type GRPCReporter struct {
	srv *health.Server
}

// NewGRPCReporter creates a reporter backed by a fresh health server.
func NewGRPCReporter() *GRPCReporter {
	return &GRPCReporter{srv: health.NewServer()}
}

// Server returns the server to register on a gRPC server.
func (g *GRPCReporter) Server() *health.Server { return g.srv }

// Update applies a report. Only critical maps to NOT_SERVING; degraded
// components still answer through their fallbacks.
func (g *GRPCReporter) Update(r *Report) {
	g.srv.SetServingStatus("", servingStatus(r.OverallStatus))
	for _, c := range r.Components {
		g.srv.SetServingStatus(c.Name, servingStatus(c.Status))
	}
}

// Shutdown marks every service NOT_SERVING.
func (g *GRPCReporter) Shutdown() {
	g.srv.Shutdown()
}

func servingStatus(s Status) healthpb.HealthCheckResponse_ServingStatus {
	switch s {
	case StatusCritical:
		return healthpb.HealthCheckResponse_NOT_SERVING
	case StatusUnknown:
		return healthpb.HealthCheckResponse_UNKNOWN
	default:
		return healthpb.HealthCheckResponse_SERVING
	}
}
