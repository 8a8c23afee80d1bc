package metrics

// Collector captures counters, gauges and histograms.
type Collector interface {
	IncCounter(name string, labels map[string]string, delta float64)
	SetGauge(name string, labels map[string]string, value float64)
	ObserveHistogram(name string, labels map[string]string, value float64)
}

// Names used across the service.
const (
	HTTPRequests        = "keyscan_http_requests_total"
	HTTPRequestSeconds  = "keyscan_http_request_duration_seconds"
	KeysEnumerated      = "keyscan_keys_enumerated_total"
	OpsApplied          = "keyscan_ops_applied_total"
	TopologyPrimaries   = "keyscan_topology_primaries"
	PartitionPingSecond = "keyscan_partition_ping_seconds"
)

// Nop drops everything.
type Nop struct{}

func (Nop) IncCounter(string, map[string]string, float64)       {}
func (Nop) SetGauge(string, map[string]string, float64)         {}
func (Nop) ObserveHistogram(string, map[string]string, float64) {}
