package diagnostics

// Health thresholds. A run needs room for node_modules and the build output.
const (
	MinFreeDiskGB    = 1.0
	MaxMemoryPercent = 95.0
)

// Status values reported by Check.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Health is the result of a resource check.
type Health struct {
	Status   string        `json:"status"`
	Warnings []string      `json:"warnings,omitempty"`
	System   SystemMetrics `json:"system"`
}

// Check collects metrics and flags conditions that would make runs fail.
func (c *SystemMetricsCollector) Check() Health {
	m := c.Collect()
	h := Health{Status: StatusHealthy, System: m}
	if m.DiskTotalGB > 0 && m.DiskFreeGB < MinFreeDiskGB {
		h.Warnings = append(h.Warnings, "low disk space for generated projects")
	}
	if m.MemPercent > MaxMemoryPercent {
		h.Warnings = append(h.Warnings, "memory nearly exhausted")
	}
	if len(h.Warnings) > 0 {
		h.Status = StatusDegraded
	}
	return h
}
