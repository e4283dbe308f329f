package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	redisclient "github.com/vietddude/demandcast/internal/infra/redis"
	"github.com/vietddude/demandcast/internal/llm"
	"github.com/vietddude/demandcast/internal/model"
)

func healthRequest(service string) *healthpb.HealthCheckRequest {
	return &healthpb.HealthCheckRequest{Service: service}
}

type stubDB struct {
	pingErr error
	conns   int
}

func (s stubDB) Ping(context.Context) error                     { return s.pingErr }
func (s stubDB) ActiveConnections(context.Context) (int, error) { return s.conns, nil }
func (s stubDB) Version(context.Context) (string, error)        { return "PostgreSQL 16.2", nil }

type stubCache redisclient.Probe

func (s stubCache) Probe(context.Context) redisclient.Probe { return redisclient.Probe(s) }

func metricByName(h ComponentHealth, name string) (Metric, bool) {
	for _, m := range h.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

func runCheck(t *testing.T, name string, typ ComponentType, fn CheckFunc) ComponentHealth {
	t.Helper()
	c := NewChecker()
	c.Register(name, typ, fn)
	return c.Check(context.Background()).Components[0]
}

func TestDatabaseCheck(t *testing.T) {
	h := runCheck(t, ComponentDatabase, TypeDatabase, DatabaseCheck(stubDB{conns: 60}))
	if h.Status != StatusWarning {
		t.Errorf("status = %s", h.Status)
	}
	if m, ok := metricByName(h, "active_connections"); !ok || m.Status != StatusWarning {
		t.Errorf("active_connections = %+v", m)
	}
	if h.Details["version"] != "PostgreSQL 16.2" {
		t.Errorf("details = %v", h.Details)
	}

	h = runCheck(t, ComponentDatabase, TypeDatabase, DatabaseCheck(stubDB{pingErr: errors.New("connection refused")}))
	if h.Status != StatusCritical || h.ErrorMessage != "connection refused" {
		t.Errorf("down = %+v", h)
	}

	h = runCheck(t, ComponentDatabase, TypeDatabase, DatabaseCheck(nil))
	if h.Status != StatusCritical {
		t.Errorf("unconfigured = %s", h.Status)
	}
}

func TestCacheCheck(t *testing.T) {
	h := runCheck(t, ComponentCache, TypeCache, CacheCheck(stubCache{
		Enabled: true, WriteLatency: time.Millisecond, ReadLatency: time.Millisecond,
	}))
	if h.Status != StatusHealthy {
		t.Errorf("status = %s", h.Status)
	}
	if _, ok := metricByName(h, "hit_rate"); ok {
		t.Error("hit rate reported without lookups")
	}

	h = runCheck(t, ComponentCache, TypeCache, CacheCheck(stubCache{
		Enabled: true, WriteLatency: time.Millisecond, ReadLatency: time.Millisecond, HitRate: 40, Lookups: 10,
	}))
	if m, ok := metricByName(h, "hit_rate"); !ok || m.Status != StatusCritical {
		t.Errorf("hit_rate = %+v", m)
	}

	h = runCheck(t, ComponentCache, TypeCache, CacheCheck(stubCache{Err: errors.New("cache disabled")}))
	if h.Status != StatusWarning || h.Details["fallback_active"] != true {
		t.Errorf("down = %+v", h)
	}
}

func TestModelsCheck(t *testing.T) {
	dir := t.TempDir()
	store := model.NewStore(dir)

	h := runCheck(t, ComponentModels, TypeMLModel, ModelsCheck(store))
	if h.Status != StatusCritical {
		t.Errorf("empty dir = %s", h.Status)
	}

	if err := store.Save(&model.Model{Product: "bolo", Intercept: 40}); err != nil {
		t.Fatal(err)
	}
	h = runCheck(t, ComponentModels, TypeMLModel, ModelsCheck(store))
	if h.Status != StatusHealthy {
		t.Errorf("status = %s (%s)", h.Status, h.ErrorMessage)
	}
	if m, ok := metricByName(h, "total_models"); !ok || m.Value != 1 {
		t.Errorf("total_models = %+v", m)
	}

	h = runCheck(t, ComponentModels, TypeMLModel, ModelsCheck(model.NewStore(filepath.Join(dir, "missing"))))
	if h.Status != StatusCritical {
		t.Errorf("missing dir = %s", h.Status)
	}
}

func TestModelsCheck_CorruptSample(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "prophet_model_bolo.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := runCheck(t, ComponentModels, TypeMLModel, ModelsCheck(model.NewStore(dir)))
	if h.Status != StatusCritical {
		t.Errorf("status = %s", h.Status)
	}
}

func TestAPIsCheck(t *testing.T) {
	ok := func(context.Context) error { return nil }
	bad := func(context.Context) error { return errors.New("401 unauthorized") }

	h := runCheck(t, ComponentAPIs, TypeAPIExternal, APIsCheck([]APIProbe{{"OpenAI API", ok}, {"Gemini API", ok}}, llm.NewMonitor()))
	if h.Status != StatusHealthy {
		t.Errorf("all up = %s", h.Status)
	}
	if _, ok := metricByName(h, "openai_api_latency"); !ok {
		t.Errorf("metrics = %+v", h.Metrics)
	}

	h = runCheck(t, ComponentAPIs, TypeAPIExternal, APIsCheck([]APIProbe{{"OpenAI API", bad}, {"Gemini API", bad}}, nil))
	if h.Status != StatusWarning {
		t.Errorf("all down = %s", h.Status)
	}
	if h.Details["healthy_count"] != 0 {
		t.Errorf("details = %v", h.Details)
	}

	h = runCheck(t, ComponentAPIs, TypeAPIExternal, APIsCheck(nil, nil))
	if h.Status != StatusUnavailable {
		t.Errorf("none = %s", h.Status)
	}
}

func TestSystemCheck(t *testing.T) {
	read := func(context.Context) (Resources, error) {
		return Resources{CPUPercent: 75, CPUCount: 4, MemPercent: 40, DiskPercent: 50, Load1: 1, MemTotal: 8 << 30}, nil
	}
	h := runCheck(t, ComponentSystem, TypeSystem, SystemCheck(read))
	if h.Status != StatusWarning {
		t.Errorf("status = %s", h.Status)
	}
	if m, ok := metricByName(h, "load_average"); !ok || *m.ThresholdWarning != 2.8 {
		t.Errorf("load = %+v", m)
	}
	if h.Details["memory_total_gb"] != 8.0 {
		t.Errorf("details = %v", h.Details)
	}

	failing := func(context.Context) (Resources, error) { return Resources{}, errors.New("no /proc") }
	h = runCheck(t, ComponentSystem, TypeSystem, SystemCheck(failing))
	if h.Status != StatusCritical {
		t.Errorf("failing = %s", h.Status)
	}
}
