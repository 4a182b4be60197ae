package geminichat

import (
	"runtime"
	"sync"
	"time"
)

// MaxRecentErrors defines how many recent errors to retain for monitoring.
const MaxRecentErrors = 10

// ErrorDetail stores structured information about an error event within the
// service, used for error reporting in the dashboard and the TUI.
type ErrorDetail struct {
	Timestamp time.Time `json:"timestamp"` // Time when the error occurred.
	Source    string    `json:"source"`    // Where the error surfaced (e.g. "chat", "models").
	Model     string    `json:"model"`     // Model being queried if known, else "unknown".
	APIKeyID  string    `json:"apiKeyId"`  // Masked credential name used for the request, if any.
	ErrorType string    `json:"errorType"` // Failure class (e.g. "quota", "auth", "validation").
	Message   string    `json:"message"`   // Brief error message.
}

// ModelStats aggregates request outcomes for a single model.
type ModelStats struct {
	Requests  uint64
	Successes uint64
	Failures  uint64
}

// ServiceStats holds aggregated statistics for the whole service: request
// totals, cache effectiveness, per-model breakdowns, and a capped list of
// recent errors. Access is protected by a mutex for safe concurrent updates
// from request goroutines and concurrent reads from monitoring surfaces.
type ServiceStats struct {
	mu                     sync.Mutex
	startedAt              time.Time
	totalRequests          uint64
	totalSuccesses         uint64
	totalFailures          uint64
	cacheHits              uint64
	cacheMisses            uint64
	totalLatencyForAverage uint64
	models                 map[string]*ModelStats
	recentErrors           []ErrorDetail
}

// StatsSnapshot is a point-in-time copy of the service counters, safe to
// hand to encoders and the TUI without further locking.
type StatsSnapshot struct {
	TotalRequests              uint64
	TotalSuccesses             uint64
	TotalFailures              uint64
	CacheHits                  uint64
	CacheMisses                uint64
	AverageLatencyMicroseconds uint64
	Models                     map[string]ModelStats
	RecentErrors               []ErrorDetail
}

// RuntimeInfo holds information about the service process itself: operational
// status, start time, and basic Go process memory statistics.
type RuntimeInfo struct {
	Status        string    // Current operational status (e.g. "Online").
	StartedAt     time.Time // When this instance started; clients derive uptime from it.
	MemAllocBytes uint64    // Bytes of allocated heap objects, via runtime.MemStats.Alloc.
	MemSysBytes   uint64    // Total bytes obtained from the OS by the Go runtime, via runtime.MemStats.Sys.
	GoVersion     string    // Version of the Go runtime the binary was built with.
	NumGoroutine  int       // Goroutines currently live in the process.
}

// NewServiceStats builds a zeroed stats collector stamped with the current
// time as the service start.
func NewServiceStats() *ServiceStats {
	return &ServiceStats{
		startedAt:    time.Now(),
		models:       make(map[string]*ModelStats),
		recentErrors: make([]ErrorDetail, 0, MaxRecentErrors),
	}
}

// RecordRequest counts one upstream chat call and its outcome against the
// global totals, the per-model breakdown, and the running latency average.
func (s *ServiceStats) RecordRequest(model string, success bool, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalRequests++
	if success {
		s.totalSuccesses++
	} else {
		s.totalFailures++
	}
	s.totalLatencyForAverage += uint64(latency.Microseconds())

	ms := s.models[model]
	if ms == nil {
		ms = &ModelStats{}
		s.models[model] = ms
	}
	ms.Requests++
	if success {
		ms.Successes++
	} else {
		ms.Failures++
	}
}

// RecordCacheHit counts a request served from the reply cache.
func (s *ServiceStats) RecordCacheHit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheHits++
}

// RecordCacheMiss counts a request that had to go upstream.
func (s *ServiceStats) RecordCacheMiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheMisses++
}

// AddError prepends an error record so the most recent errors stay at the
// top, capping the list at MaxRecentErrors.
func (s *ServiceStats) AddError(detail ErrorDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recentErrors = append([]ErrorDetail{detail}, s.recentErrors...)
	if len(s.recentErrors) > MaxRecentErrors {
		s.recentErrors = s.recentErrors[:MaxRecentErrors]
	}
}

// Snapshot returns a deep copy of the current counters, per-model stats, and
// recent errors.
func (s *ServiceStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		TotalRequests:  s.totalRequests,
		TotalSuccesses: s.totalSuccesses,
		TotalFailures:  s.totalFailures,
		CacheHits:      s.cacheHits,
		CacheMisses:    s.cacheMisses,
		Models:         make(map[string]ModelStats, len(s.models)),
		RecentErrors:   make([]ErrorDetail, len(s.recentErrors)),
	}
	if s.totalRequests > 0 {
		snap.AverageLatencyMicroseconds = s.totalLatencyForAverage / s.totalRequests
	}
	for name, ms := range s.models {
		snap.Models[name] = *ms
	}
	copy(snap.RecentErrors, s.recentErrors)
	return snap
}

// Runtime reports process-level information for monitoring surfaces. Memory
// figures are read fresh from the Go runtime on every call.
func (s *ServiceStats) Runtime() RuntimeInfo {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s.mu.Lock()
	startedAt := s.startedAt
	s.mu.Unlock()

	return RuntimeInfo{
		Status:        "Online",
		StartedAt:     startedAt,
		MemAllocBytes: mem.Alloc,
		MemSysBytes:   mem.Sys,
		GoVersion:     runtime.Version(),
		NumGoroutine:  runtime.NumGoroutine(),
	}
}
