// Package api defines the data structures and handlers for the chat
// service's HTTP API: the chat endpoints themselves plus surfaces for health
// checks, model discovery, runtime credential management, and monitoring.
package api

import "time"

// --- Chat Endpoints (/api/doctor-chat, /api/chat) ---

// PartItem is one text fragment of a conversation turn, matching the wire
// shape of the upstream generative-language API.
type PartItem struct {
	Text string `json:"text"` // The fragment text.
}

// HistoryItem is one prior conversation turn supplied by the client.
type HistoryItem struct {
	Role  string     `json:"role"`  // Speaker: "user" or "model".
	Parts []PartItem `json:"parts"` // Text fragments of the turn. Must be non-empty.
}

// ChatRequestBody is the JSON body of POST /api/doctor-chat and /api/chat.
// GET requests carry the same fields as query parameters, with history as a
// URL-encoded JSON array.
type ChatRequestBody struct {
	Message string        `json:"message"`           // The user's message. Required, bounded length.
	History []HistoryItem `json:"history,omitempty"` // Prior turns, oldest first. Optional.
	Stream  bool          `json:"stream,omitempty"`  // Deliver the reply incrementally when true.
}

// ChatResponse is the JSON reply for non-streaming chat requests.
type ChatResponse struct {
	Reply           string      `json:"reply"`                // Full reply text.
	NextHistoryItem HistoryItem `json:"nextHistoryItem"`      // Entry the client appends to continue the conversation.
	Safety          string      `json:"safety,omitempty"`     // Non-STOP finish annotation, when present.
	Timestamp       time.Time   `json:"timestamp"`            // When the reply was produced; cached replies keep their original time.
	Model           string      `json:"model"`                // Model that produced the reply.
	TokensUsed      int         `json:"tokensUsed,omitempty"` // Total token count reported upstream, when known.
	Cached          bool        `json:"cached"`               // True when served from the reply cache.
}

// StreamMetadata is the JSON blob written after the ---METADATA--- marker at
// the end of a streamed text/plain response. It mirrors ChatResponse minus
// the reply text, which has already been delivered as raw chunks.
type StreamMetadata struct {
	NextHistoryItem HistoryItem `json:"nextHistoryItem"`      // Entry the client appends to continue the conversation.
	Safety          string      `json:"safety,omitempty"`     // Non-STOP finish annotation, when present.
	Timestamp       time.Time   `json:"timestamp"`            // When the reply was produced.
	Model           string      `json:"model"`                // Model that produced the reply.
	TokensUsed      int         `json:"tokensUsed,omitempty"` // Total token count reported upstream, when known.
	Cached          bool        `json:"cached"`               // True when served from the reply cache.
}

// StreamMetadataMarker separates raw streamed text from the trailing JSON
// metadata blob in streaming responses.
const StreamMetadataMarker = "---METADATA---"

// --- Health Endpoint (GET /health) ---

// HealthResponse is the liveness report of GET /health.
type HealthResponse struct {
	OK           bool      `json:"ok"`           // True while the service is accepting requests.
	Model        string    `json:"model"`        // Configured model identifier.
	Timestamp    time.Time `json:"timestamp"`    // When this report was generated.
	CacheSize    int       `json:"cacheSize"`    // Entries currently held by the reply cache, stale included.
	APIKeysCount int       `json:"apiKeysCount"` // Credentials currently pooled.
}

// --- Models Endpoint (GET /api/models) ---

// ModelItem describes one model available to the configured credentials.
type ModelItem struct {
	Name             string   `json:"name"`                       // Fully qualified model name.
	DisplayName      string   `json:"displayName,omitempty"`      // Human-readable name.
	Description      string   `json:"description,omitempty"`      // Short description.
	SupportedActions []string `json:"supportedActions,omitempty"` // Generation methods the model supports.
}

// ModelsResponse is the JSON reply of GET /api/models.
type ModelsResponse struct {
	Models    []ModelItem `json:"models"`    // Models visible to the rotated credential.
	Count     int         `json:"count"`     // Number of models listed.
	Timestamp time.Time   `json:"timestamp"` // When the listing was taken.
}

// --- Licenses Endpoints (/api/licenses) ---

// LicenseItem is the externally visible view of one pooled credential.
// Secrets are never echoed; the masked alias identifies the credential in
// listings while mutation endpoints take the full key from the caller.
type LicenseItem struct {
	KeyAlias           string  `json:"keyAlias"`           // Masked alias (e.g. "...key1").
	IsEnabled          bool    `json:"isEnabled"`          // True if the credential participates in rotation.
	Requests           uint64  `json:"requests"`           // Total requests attempted with this credential.
	Successes          uint64  `json:"successes"`          // Successful upstream calls.
	Failures           uint64  `json:"failures"`           // Failed upstream calls.
	AverageLatencyMs   float64 `json:"averageLatencyMs"`   // Average upstream latency, in milliseconds.
	SuccessRatePercent float64 `json:"successRatePercent"` // Successes / Requests, as a percentage.
}

// LicensesResponse is the JSON reply of GET /api/licenses.
type LicensesResponse struct {
	Licenses  []LicenseItem `json:"licenses"`  // All pooled credentials, masked.
	Count     int           `json:"count"`     // Pool size.
	Timestamp time.Time     `json:"timestamp"` // When the listing was taken.
}

// AddLicenseRequest is the JSON body of POST /api/licenses.
type AddLicenseRequest struct {
	Key string `json:"key"` // The full credential to pool. Required.
}

// UpdateLicenseRequest is the JSON body of PATCH /api/licenses/{key}.
type UpdateLicenseRequest struct {
	Enabled bool `json:"enabled"` // Desired rotation state.
}

// LicenseActionResponse acknowledges a pool mutation.
type LicenseActionResponse struct {
	KeyAlias  string    `json:"keyAlias"`  // Masked alias of the affected credential.
	IsEnabled bool      `json:"isEnabled"` // Rotation state after the mutation.
	Message   string    `json:"message"`   // Human-readable confirmation.
	Timestamp time.Time `json:"timestamp"` // When the mutation was applied.
}

// --- Error Envelope ---

// ErrorBody carries the machine-readable description of a failure.
type ErrorBody struct {
	Code    string `json:"code"`    // Stable machine-readable code (e.g. "QUOTA_EXCEEDED").
	Message string `json:"message"` // Human-readable detail; redacted in production for upstream failures.
}

// ErrorResponse is the JSON envelope for every non-2xx reply.
type ErrorResponse struct {
	Error     ErrorBody `json:"error"`     // The failure description.
	Timestamp time.Time `json:"timestamp"` // When the failure was reported.
}

// --- Dashboard Endpoint (GET /api/dashboard) ---

// ServiceStatus defines the possible operational statuses of the service.
type ServiceStatus string

// Constants for the possible values of ServiceStatus.
const (
	StatusOnline   ServiceStatus = "online"   // Service is operating normally.
	StatusOffline  ServiceStatus = "offline"  // Service is not operational.
	StatusDegraded ServiceStatus = "degraded" // Service is up but some credentials are disabled.
	StatusUnknown  ServiceStatus = "unknown"  // Status cannot be determined.
)

// ServiceStatusItem represents the operational status of a service component.
type ServiceStatusItem struct {
	Name          string        `json:"name"`          // Component name (e.g. "Gemini Chat Service").
	Status        ServiceStatus `json:"status"`        // Current operational status.
	UptimeSeconds int64         `json:"uptimeSeconds"` // Uptime of this component in seconds.
}

// RecentErrorItem represents a single recent error event.
type RecentErrorItem struct {
	Timestamp time.Time `json:"timestamp"`        // When the error occurred.
	Message   string    `json:"message"`          // Detailed error message including type, key, and model context.
	Source    string    `json:"source,omitempty"` // Where the error surfaced (e.g. "chat", "models").
}

// ModelRequestStats aggregates request outcomes for a single model.
type ModelRequestStats struct {
	TotalRequests      uint64 `json:"totalRequests"`      // Requests routed to this model.
	SuccessfulRequests uint64 `json:"successfulRequests"` // Successful upstream calls.
	FailedRequests     uint64 `json:"failedRequests"`     // Failed upstream calls.
}

// ChatStatistics aggregates the service-wide request and cache counters.
type ChatStatistics struct {
	TotalRequests             uint64                       `json:"totalRequests"`             // Upstream chat calls attempted.
	SuccessfulRequests        uint64                       `json:"successfulRequests"`        // Successful upstream calls.
	FailedRequests            uint64                       `json:"failedRequests"`            // Failed upstream calls.
	OverallSuccessRatePercent float64                      `json:"overallSuccessRatePercent"` // Successes / requests, as a percentage.
	AverageLatencyMs          float64                      `json:"averageLatencyMs"`          // Average upstream latency, in milliseconds.
	CacheHits                 uint64                       `json:"cacheHits"`                 // Requests served from the reply cache.
	CacheMisses               uint64                       `json:"cacheMisses"`               // Requests that went upstream.
	CacheHitRatePercent       float64                      `json:"cacheHitRatePercent"`       // Hits / (hits + misses), as a percentage.
	CacheSize                 int                          `json:"cacheSize"`                 // Entries currently held, stale included.
	Models                    map[string]ModelRequestStats `json:"models"`                    // Per-model breakdown.
}

// ApiKeyPerformanceItem represents performance metrics and status for a
// single pooled credential.
type ApiKeyPerformanceItem struct {
	KeyAlias           string  `json:"keyAlias"`           // Masked alias for the credential.
	TotalRequests      uint64  `json:"totalRequests"`      // Total requests made with this credential.
	SuccessfulRequests uint64  `json:"successfulRequests"` // Successful requests.
	FailedRequests     uint64  `json:"failedRequests"`     // Failed requests.
	AverageLatencyMs   float64 `json:"averageLatencyMs"`   // Average latency, in milliseconds.
	SuccessRatePercent float64 `json:"successRatePercent"` // Success rate for this credential.
	IsEnabled          bool    `json:"isEnabled"`          // True if the credential participates in rotation.
}

// SystemInformation provides process-level metrics for the service.
type SystemInformation struct {
	MemoryUsageMB float64 `json:"memoryUsageMB"` // Heap allocated by the Go process, in MB.
	TotalMemoryMB float64 `json:"totalMemoryMB"` // Total memory obtained from the OS by the Go runtime, in MB.
	UptimeSeconds int64   `json:"uptimeSeconds"` // Service uptime in seconds.
	GoVersion     string  `json:"goVersion"`     // Go runtime version the binary was built with.
	Goroutines    int     `json:"goroutines"`    // Goroutines currently live in the process.
}

// DashboardData is the root object returned by GET /api/dashboard. It
// aggregates status, statistics, credential performance, and system metrics.
type DashboardData struct {
	LastUpdated       time.Time               `json:"lastUpdated"`       // When this snapshot was generated.
	ServiceStatus     []ServiceStatusItem     `json:"serviceStatus"`     // Status of the main service components.
	RecentErrors      []RecentErrorItem       `json:"recentErrors"`      // Most recent errors, newest first.
	Statistics        ChatStatistics          `json:"statistics"`        // Aggregated request and cache statistics.
	APIKeyPerformance []ApiKeyPerformanceItem `json:"apiKeyPerformance"` // Per-credential performance.
	SystemInformation SystemInformation       `json:"systemInformation"` // Process-level metrics.
}
