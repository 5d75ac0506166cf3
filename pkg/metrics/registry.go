// Package metrics defines the observability surface of a dittodir partition:
// the collector interfaces used by the partition engine and the backup runner,
// their no-op defaults, the process-wide Prometheus registry and the HTTP
// server that exposes it together with the partition's health.
//
// Collectors are optional. Until InitRegistry is called every constructor in
// the prometheus subpackage hands back a no-op, so a partition opened by a
// one-shot command (import, export) pays nothing for metrics.
//
//	metrics.InitRegistry()
//	m := prometheus.NewPartitionMetrics("userRoot", "dirtree")
//	engine, err := partition.New(cfg, st, partition.WithMetrics(m))
package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the process-wide registry. Later calls are no-ops.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the process-wide registry, or nil before InitRegistry.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// Family describes one registered metric family.
type Family struct {
	Name string
	Type string
	Help string

	// Series is the number of label combinations currently exported
	Series int
}

// Families gathers the registry and describes every family it holds, sorted
// by name. It returns nil when metrics are disabled.
func Families() ([]Family, error) {
	reg := GetRegistry()
	if reg == nil {
		return nil, nil
	}
	gathered, err := reg.Gather()
	if err != nil {
		return nil, err
	}

	out := make([]Family, 0, len(gathered))
	for _, mf := range gathered {
		out = append(out, Family{
			Name:   mf.GetName(),
			Type:   familyType(mf.GetType()),
			Help:   mf.GetHelp(),
			Series: len(mf.GetMetric()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func familyType(t dto.MetricType) string {
	switch t {
	case dto.MetricType_COUNTER:
		return "counter"
	case dto.MetricType_GAUGE:
		return "gauge"
	case dto.MetricType_HISTOGRAM, dto.MetricType_GAUGE_HISTOGRAM:
		return "histogram"
	case dto.MetricType_SUMMARY:
		return "summary"
	default:
		return "untyped"
	}
}
