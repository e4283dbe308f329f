package health

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"

	redisclient "github.com/vietddude/demandcast/internal/infra/redis"
	"github.com/vietddude/demandcast/internal/llm"
	"github.com/vietddude/demandcast/internal/model"
)

// Component names used when registering the standard checks.
const (
	ComponentDatabase = "PostgreSQL Database"
	ComponentCache    = "Redis Cache"
	ComponentModels   = "ML Models"
	ComponentAPIs     = "External APIs"
	ComponentSystem   = "System Resources"
)

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// DatabaseProber is the subset of the database used by the check.
type DatabaseProber interface {
	Ping(ctx context.Context) error
	ActiveConnections(ctx context.Context) (int, error)
	Version(ctx context.Context) (string, error)
}

// DatabaseCheck measures connection latency and server sessions. A failed
// ping is critical.
func DatabaseCheck(p DatabaseProber) CheckFunc {
	return func(ctx context.Context) (ComponentHealth, error) {
		h := ComponentHealth{Type: TypeDatabase, Details: map[string]any{}}
		if p == nil {
			h.Status = StatusCritical
			h.ErrorMessage = "database not configured"
			h.Metrics = []Metric{Flag("connection_status", StatusCritical, "Connection failed: database not configured")}
			return h, nil
		}

		start := time.Now()
		if err := p.Ping(ctx); err != nil {
			h.Status = StatusCritical
			h.ErrorMessage = err.Error()
			h.Details["error"] = err.Error()
			h.Metrics = []Metric{Flag("connection_status", StatusCritical, "Connection failed: "+err.Error())}
			return h, nil
		}
		h.Metrics = append(h.Metrics, Threshold("connection_latency", ms(time.Since(start)), "ms", 100, 500, false))

		if n, err := p.ActiveConnections(ctx); err == nil {
			h.Details["active_connections"] = n
			h.Metrics = append(h.Metrics, Threshold("active_connections", float64(n), "connections", 50, 100, false))
		}
		if v, err := p.Version(ctx); err == nil {
			h.Details["version"] = v
		}
		return h, nil
	}
}

// CacheProber runs a cache round trip.
type CacheProber interface {
	Probe(ctx context.Context) redisclient.Probe
}

// CacheCheck measures write and read latency and the hit rate. An
// unreachable cache is a warning since every lookup falls through.
func CacheCheck(p CacheProber) CheckFunc {
	return func(ctx context.Context) (ComponentHealth, error) {
		h := ComponentHealth{Type: TypeCache, Details: map[string]any{}}
		if p == nil {
			return degradedCache(h, errors.New("cache not configured")), nil
		}

		res := p.Probe(ctx)
		if res.Err != nil {
			return degradedCache(h, res.Err), nil
		}
		h.Metrics = []Metric{
			Threshold("write_latency", ms(res.WriteLatency), "ms", 50, 200, false),
			Threshold("read_latency", ms(res.ReadLatency), "ms", 25, 100, false),
		}
		// The hit rate means nothing before the first lookup.
		if res.Lookups > 0 {
			h.Metrics = append(h.Metrics, Threshold("hit_rate", res.HitRate, "%", 70, 50, true))
		}
		h.Details["lookups"] = res.Lookups
		return h, nil
	}
}

func degradedCache(h ComponentHealth, err error) ComponentHealth {
	h.Status = StatusWarning
	h.ErrorMessage = err.Error()
	h.Details["error"] = err.Error()
	h.Details["fallback_active"] = true
	h.Metrics = []Metric{Flag("cache_status", StatusWarning, "Cache unavailable, using fallback: "+err.Error())}
	return h
}

// ModelInspector is the subset of the model store used by the check.
type ModelInspector interface {
	Dir() string
	Stats() (model.Stats, error)
	Load(ctx context.Context, product string) (*model.Model, error)
}

// ModelsCheck requires at least one loadable artifact and times a sample
// load.
func ModelsCheck(store ModelInspector) CheckFunc {
	return func(ctx context.Context) (ComponentHealth, error) {
		h := ComponentHealth{Type: TypeMLModel, Details: map[string]any{}}
		fail := func(err error) (ComponentHealth, error) {
			h.Status = StatusCritical
			h.ErrorMessage = err.Error()
			h.Details["error"] = err.Error()
			h.Metrics = []Metric{Flag("models_status", StatusCritical, "Models unavailable: "+err.Error())}
			return h, nil
		}
		if store == nil {
			return fail(errors.New("model store not configured"))
		}
		h.Details["models_directory"] = store.Dir()

		st, err := store.Stats()
		if err != nil {
			return fail(err)
		}
		if st.Count == 0 {
			return fail(errors.New("no trained models found"))
		}

		start := time.Now()
		if _, err := store.Load(ctx, st.Sample); err != nil {
			return fail(fmt.Errorf("failed to load model %s: %w", st.Sample, err))
		}
		avgMB := float64(st.TotalBytes) / float64(st.Count) / (1024 * 1024)

		h.Metrics = []Metric{
			Threshold("model_load_time", ms(time.Since(start)), "ms", 1000, 5000, false),
			Threshold("avg_model_size", avgMB, "MB", 50, 100, false),
			{Name: "total_models", Value: float64(st.Count), Unit: "count", Status: StatusHealthy},
		}
		h.Details["total_models"] = st.Count
		h.Details["total_size_mb"] = float64(st.TotalBytes) / (1024 * 1024)
		return h, nil
	}
}

// APIProbe checks reachability of one external API.
type APIProbe struct {
	Name  string
	Probe func(ctx context.Context) error
}

// APIsCheck probes every external API. Failures are warnings since
// insights degrade to offline templates. Provider statistics from the
// orchestrator monitor are attached when mon is set.
func APIsCheck(probes []APIProbe, mon *llm.Monitor) CheckFunc {
	return func(ctx context.Context) (ComponentHealth, error) {
		h := ComponentHealth{Type: TypeAPIExternal, Details: map[string]any{}, Status: StatusHealthy}

		var (
			apis    []map[string]any
			healthy int
		)
		for _, p := range probes {
			start := time.Now()
			err := p.Probe(ctx)
			latency := ms(time.Since(start))
			key := metricName(p.Name)

			if err != nil {
				apis = append(apis, map[string]any{"name": p.Name, "status": StatusUnavailable, "response_time": latency, "error": err.Error()})
				h.Metrics = append(h.Metrics, Flag(key+"_status", StatusWarning, p.Name+" unavailable: "+err.Error()))
				continue
			}
			healthy++
			apis = append(apis, map[string]any{"name": p.Name, "status": StatusHealthy, "response_time": latency})
			h.Metrics = append(h.Metrics, Threshold(key+"_latency", latency, "ms", 2000, 5000, false))
		}

		if healthy < len(probes) || Worst(h.Metrics) != StatusHealthy {
			h.Status = StatusWarning
		}
		if len(probes) == 0 {
			h.Status = StatusUnavailable
			h.ErrorMessage = "no external APIs configured"
		}

		h.Details["apis"] = apis
		h.Details["healthy_count"] = healthy
		h.Details["total_count"] = len(probes)
		if mon != nil {
			h.Details["providers"] = mon.All()
		}
		return h, nil
	}
}

func metricName(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "_")
}

// Resources is a snapshot of host resource usage.
type Resources struct {
	CPUPercent   float64
	CPUCount     int
	MemPercent   float64
	MemTotal     uint64
	MemAvailable uint64
	DiskPercent  float64
	DiskTotal    uint64
	DiskFree     uint64
	Load1        float64
	BootTime     time.Time
}

// ResourceReader samples host resources.
type ResourceReader func(ctx context.Context) (Resources, error)

// HostResources reads host resources with gopsutil. CPU usage is sampled
// over the given window.
func HostResources(diskPath string, sample time.Duration) ResourceReader {
	return func(ctx context.Context) (Resources, error) {
		var r Resources

		pct, err := cpu.PercentWithContext(ctx, sample, false)
		if err != nil {
			return r, fmt.Errorf("cpu: %w", err)
		}
		if len(pct) > 0 {
			r.CPUPercent = pct[0]
		}
		if r.CPUCount, err = cpu.CountsWithContext(ctx, true); err != nil {
			return r, fmt.Errorf("cpu count: %w", err)
		}

		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return r, fmt.Errorf("memory: %w", err)
		}
		r.MemPercent, r.MemTotal, r.MemAvailable = vm.UsedPercent, vm.Total, vm.Available

		du, err := disk.UsageWithContext(ctx, diskPath)
		if err != nil {
			return r, fmt.Errorf("disk: %w", err)
		}
		r.DiskTotal, r.DiskFree = du.Total, du.Free
		if du.Total > 0 {
			r.DiskPercent = float64(du.Used) / float64(du.Total) * 100
		}

		// Not every platform reports load or boot time.
		if avg, err := load.AvgWithContext(ctx); err == nil {
			r.Load1 = avg.Load1
		}
		if bt, err := host.BootTimeWithContext(ctx); err == nil {
			r.BootTime = time.Unix(int64(bt), 0)
		}
		return r, nil
	}
}

const gib = 1 << 30

// SystemCheck compares CPU, memory, disk and load against fixed limits.
func SystemCheck(read ResourceReader) CheckFunc {
	return func(ctx context.Context) (ComponentHealth, error) {
		h := ComponentHealth{Type: TypeSystem, Details: map[string]any{}}
		r, err := read(ctx)
		if err != nil {
			h.Status = StatusCritical
			h.ErrorMessage = err.Error()
			h.Details["error"] = err.Error()
			h.Metrics = []Metric{Flag("system_status", StatusCritical, "System check failed: "+err.Error())}
			return h, nil
		}

		h.Metrics = []Metric{
			Threshold("cpu_usage", r.CPUPercent, "%", 70, 90, false),
			Threshold("memory_usage", r.MemPercent, "%", 70, 85, false),
			Threshold("disk_usage", r.DiskPercent, "%", 80, 90, false),
		}
		if r.Load1 > 0 && r.CPUCount > 0 {
			n := float64(r.CPUCount)
			h.Metrics = append(h.Metrics, Threshold("load_average", r.Load1, "load", n*0.7, n*0.9, false))
		}

		h.Details["cpu_count"] = r.CPUCount
		h.Details["memory_total_gb"] = round2(float64(r.MemTotal) / gib)
		h.Details["memory_available_gb"] = round2(float64(r.MemAvailable) / gib)
		h.Details["disk_total_gb"] = round2(float64(r.DiskTotal) / gib)
		h.Details["disk_free_gb"] = round2(float64(r.DiskFree) / gib)
		if !r.BootTime.IsZero() {
			h.Details["boot_time"] = r.BootTime.Format(time.RFC3339)
		}
		return h, nil
	}
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// HostOverview reports uptime, process count and open connections. Values
// the platform cannot provide are left out.
func HostOverview(ctx context.Context) []Metric {
	var out []Metric
	if up, err := host.UptimeWithContext(ctx); err == nil {
		out = append(out, Metric{Name: "system_uptime", Value: float64(up) / 3600, Unit: "hours", Status: StatusHealthy})
	}
	if pids, err := process.PidsWithContext(ctx); err == nil {
		out = append(out, Threshold("active_processes", float64(len(pids)), "count", 300, 500, false))
	}
	if conns, err := net.ConnectionsWithContext(ctx, "all"); err == nil {
		out = append(out, Threshold("network_connections", float64(len(conns)), "count", 100, 200, false))
	}
	return out
}
