package shared

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const maxLatencySamples = 1000

// ServiceMetrics tracks operation counts, latencies and named counters for one component
type ServiceMetrics struct {
	serviceName         string
	totalRequests       int64
	successfulRequests  int64
	failedRequests      int64
	totalProcessingTime time.Duration
	lastUpdated         time.Time
	counters            map[string]int64
	gauges              map[string]float64
	latencies           []time.Duration
	mutex               sync.RWMutex
}

// MetricsSnapshot is a point-in-time copy of ServiceMetrics, safe to serialize
type MetricsSnapshot struct {
	ServiceName           string             `json:"service_name"`
	TotalRequests         int64              `json:"total_requests"`
	SuccessfulRequests    int64              `json:"successful_requests"`
	FailedRequests        int64              `json:"failed_requests"`
	SuccessRate           float64            `json:"success_rate"`
	AverageProcessingTime time.Duration      `json:"average_processing_time"`
	P95ProcessingTime     time.Duration      `json:"p95_processing_time"`
	MaxProcessingTime     time.Duration      `json:"max_processing_time"`
	Counters              map[string]int64   `json:"counters"`
	Gauges                map[string]float64 `json:"gauges"`
	LastUpdated           time.Time          `json:"last_updated"`
}

// NewServiceMetrics creates a new metrics tracker for a service
func NewServiceMetrics(serviceName string) *ServiceMetrics {
	return &ServiceMetrics{
		serviceName: serviceName,
		lastUpdated: time.Now(),
		counters:    make(map[string]int64),
		gauges:      make(map[string]float64),
		latencies:   make([]time.Duration, 0, 64),
	}
}

// RecordRequest records a request with its success status and processing time
func (m *ServiceMetrics) RecordRequest(success bool, processingTime time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.totalRequests++
	m.totalProcessingTime += processingTime
	if success {
		m.successfulRequests++
	} else {
		m.failedRequests++
	}

	if len(m.latencies) >= maxLatencySamples {
		m.latencies = m.latencies[1:]
	}
	m.latencies = append(m.latencies, processingTime)
	m.lastUpdated = time.Now()
}

// IncrementCounter increments a named counter
func (m *ServiceMetrics) IncrementCounter(key string) {
	m.AddCounter(key, 1)
}

// AddCounter adds delta to a named counter
func (m *ServiceMetrics) AddCounter(key string, delta int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.counters[key] += delta
	m.lastUpdated = time.Now()
}

// SetGauge sets a named gauge value
func (m *ServiceMetrics) SetGauge(key string, value float64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.gauges[key] = value
	m.lastUpdated = time.Now()
}

// Counter returns the current value of a named counter
func (m *ServiceMetrics) Counter(key string) int64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.counters[key]
}

// GetSuccessRate returns the success rate as a percentage
func (m *ServiceMetrics) GetSuccessRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.successRateLocked()
}

func (m *ServiceMetrics) successRateLocked() float64 {
	if m.totalRequests == 0 {
		return 0.0
	}
	return float64(m.successfulRequests) / float64(m.totalRequests) * 100.0
}

// GetSnapshot returns a thread-safe snapshot of current metrics
func (m *ServiceMetrics) GetSnapshot() MetricsSnapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		counters[k] = v
	}
	gauges := make(map[string]float64, len(m.gauges))
	for k, v := range m.gauges {
		gauges[k] = v
	}

	snapshot := MetricsSnapshot{
		ServiceName:        m.serviceName,
		TotalRequests:      m.totalRequests,
		SuccessfulRequests: m.successfulRequests,
		FailedRequests:     m.failedRequests,
		SuccessRate:        m.successRateLocked(),
		Counters:           counters,
		Gauges:             gauges,
		LastUpdated:        m.lastUpdated,
	}

	if m.totalRequests > 0 {
		snapshot.AverageProcessingTime = time.Duration(int64(m.totalProcessingTime) / m.totalRequests)
	}

	if len(m.latencies) > 0 {
		sorted := make([]time.Duration, len(m.latencies))
		copy(sorted, m.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		p95Index := int(float64(len(sorted)) * 0.95)
		if p95Index >= len(sorted) {
			p95Index = len(sorted) - 1
		}
		snapshot.P95ProcessingTime = sorted[p95Index]
		snapshot.MaxProcessingTime = sorted[len(sorted)-1]
	}

	return snapshot
}

// LogSummary logs a comprehensive metrics summary
func (m *ServiceMetrics) LogSummary() {
	snapshot := m.GetSnapshot()

	logrus.WithFields(logrus.Fields{
		"service_name":            snapshot.ServiceName,
		"total_requests":          snapshot.TotalRequests,
		"successful_requests":     snapshot.SuccessfulRequests,
		"failed_requests":         snapshot.FailedRequests,
		"success_rate":            snapshot.SuccessRate,
		"average_processing_time": snapshot.AverageProcessingTime,
		"p95_processing_time":     snapshot.P95ProcessingTime,
		"max_processing_time":     snapshot.MaxProcessingTime,
		"counters":                snapshot.Counters,
		"gauges":                  snapshot.Gauges,
		"last_updated":            snapshot.LastUpdated,
	}).Info("Service metrics summary")
}

// Reset resets all metrics to zero
func (m *ServiceMetrics) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.totalRequests = 0
	m.successfulRequests = 0
	m.failedRequests = 0
	m.totalProcessingTime = 0
	m.lastUpdated = time.Now()
	m.counters = make(map[string]int64)
	m.gauges = make(map[string]float64)
	m.latencies = m.latencies[:0]

	logrus.WithField("service_name", m.serviceName).Info("Service metrics reset")
}
