package metrics

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Metric names
const (
	MetricGenerationTime   = "generation_time"
	MetricGenerationFailed = "generation_failed"
	MetricMessageRecorded  = "message_recorded"
	MetricMessageIncognito = "message_incognito"
	MetricStoreChanged     = "store_changed"
	MetricCleanupRun       = "cleanup_run"
)

const (
	maxMetrics       = 1000
	maxResponseTimes = 20
)

// Metric represents a single metric measurement
type Metric struct {
	Name      string            `json:"name"`
	Value     int64             `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// SystemMetrics contains aggregated metrics
type SystemMetrics struct {
	AvgGenerationTime int64            `json:"avg_generation_time"`
	P95GenerationTime int64            `json:"p95_generation_time"`
	P99GenerationTime int64            `json:"p99_generation_time"`
	GenerationTimes   []int64          `json:"generation_times"`
	GenerationFailed  int64            `json:"generation_failed"`
	MessageFlow       MessageFlow      `json:"message_flow"`
	StoreChanges      map[string]int64 `json:"store_changes"`
	Cleanup           CleanupStats     `json:"cleanup"`
	Timestamp         time.Time        `json:"timestamp"`
}

// MessageFlow tracks message statistics
type MessageFlow struct {
	User      int64 `json:"user"`
	Assistant int64 `json:"assistant"`
	Incognito int64 `json:"incognito"`
}

// CleanupStats tracks retention cleanup runs
type CleanupStats struct {
	Runs                 int64   `json:"runs"`
	DeletedConversations int64   `json:"deleted_conversations"`
	FreedSpaceMB         float64 `json:"freed_space_mb"`
}

// Collector aggregates and provides access to runtime metrics
type Collector struct {
	mu          sync.RWMutex
	metrics     []Metric
	systemStats SystemMetrics
	now         func() time.Time
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	c := &Collector{now: time.Now}
	c.Reset()
	return c
}

func (c *Collector) record(metric Metric) {
	metric.Timestamp = c.now()
	c.metrics = append(c.metrics, metric)
	if len(c.metrics) > maxMetrics {
		c.metrics = c.metrics[len(c.metrics)-maxMetrics:]
	}
	c.systemStats.Timestamp = metric.Timestamp
}

// RecordGeneration records one model call and whether it failed
func (c *Collector) RecordGeneration(duration time.Duration, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ms := duration.Milliseconds()
	c.record(Metric{Name: MetricGenerationTime, Value: ms})
	c.systemStats.GenerationTimes = append(c.systemStats.GenerationTimes, ms)
	if len(c.systemStats.GenerationTimes) > maxResponseTimes {
		c.systemStats.GenerationTimes = c.systemStats.GenerationTimes[1:]
	}
	c.calculateGenerationStats()

	if failed {
		c.record(Metric{Name: MetricGenerationFailed, Value: 1})
		c.systemStats.GenerationFailed++
	}
}

// RecordMessage counts a recorded message by role
func (c *Collector) RecordMessage(role string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record(Metric{Name: MetricMessageRecorded, Value: 1, Tags: map[string]string{"role": role}})
	if role == "user" {
		c.systemStats.MessageFlow.User++
	} else {
		c.systemStats.MessageFlow.Assistant++
	}
}

// RecordIncognitoMessage counts a message that was not recorded
func (c *Collector) RecordIncognitoMessage() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record(Metric{Name: MetricMessageIncognito, Value: 1})
	c.systemStats.MessageFlow.Incognito++
}

// RecordStoreChange counts a state change notification from a store
func (c *Collector) RecordStoreChange(store string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record(Metric{Name: MetricStoreChanged, Value: 1, Tags: map[string]string{"store": store}})
	c.systemStats.StoreChanges[store]++
}

// RecordCleanup records the outcome of a cleanup run
func (c *Collector) RecordCleanup(trigger string, deleted int, freedMB float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record(Metric{Name: MetricCleanupRun, Value: int64(deleted), Tags: map[string]string{"trigger": trigger}})
	c.systemStats.Cleanup.Runs++
	c.systemStats.Cleanup.DeletedConversations += int64(deleted)
	c.systemStats.Cleanup.FreedSpaceMB += freedMB
}

// GetSystemMetrics returns a copy of the aggregated metrics
func (c *Collector) GetSystemMetrics(ctx context.Context) SystemMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := c.systemStats
	out.GenerationTimes = slices.Clone(c.systemStats.GenerationTimes)
	out.StoreChanges = make(map[string]int64, len(c.systemStats.StoreChanges))
	for k, v := range c.systemStats.StoreChanges {
		out.StoreChanges[k] = v
	}
	return out
}

// GetMetrics returns up to limit recent metrics matching filter, oldest first.
// The "name" filter key matches the metric name; other keys match tags.
func (c *Collector) GetMetrics(ctx context.Context, filter map[string]string, limit int) []Metric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var filtered []Metric
	for i := len(c.metrics) - 1; i >= 0 && len(filtered) < limit; i-- {
		if matchesFilter(c.metrics[i], filter) {
			filtered = append(filtered, c.metrics[i])
		}
	}
	slices.Reverse(filtered)
	return filtered
}

// calculateGenerationStats computes avg, p95, p99 from recent generation times
func (c *Collector) calculateGenerationStats() {
	times := c.systemStats.GenerationTimes
	if len(times) == 0 {
		return
	}

	sorted := slices.Clone(times)
	slices.Sort(sorted)

	var sum int64
	for _, t := range times {
		sum += t
	}
	c.systemStats.AvgGenerationTime = sum / int64(len(times))

	n := len(sorted)
	c.systemStats.P95GenerationTime = sorted[int(float64(n)*0.95)]
	c.systemStats.P99GenerationTime = sorted[int(float64(n)*0.99)]
}

func matchesFilter(metric Metric, filter map[string]string) bool {
	for key, value := range filter {
		if key == "name" {
			if metric.Name != value {
				return false
			}
			continue
		}
		if metric.Tags[key] != value {
			return false
		}
	}
	return true
}

// Reset clears all collected metrics
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics = make([]Metric, 0, maxMetrics)
	c.systemStats = SystemMetrics{
		GenerationTimes: make([]int64, 0, maxResponseTimes),
		StoreChanges:    make(map[string]int64),
		Timestamp:       c.now(),
	}
}
