package api

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"geminichat"
)

// DashboardHandler returns an http.HandlerFunc that serves the GET
// /api/dashboard endpoint. It aggregates the chat service's statistics, the
// credential pool snapshot, the reply cache, and Go runtime metrics into a
// single DashboardData document consumed by monitoring frontends and the
// built-in terminal dashboard.
//
// Dependencies:
//   - svc *geminichat.Service: source of all statistics and snapshots.
//
// HTTP Responses:
//   - 200 OK: successfully compiled and returned dashboard data.
//     Content-Type: application/json.
//   - 500 Internal Server Error: if the service is not initialized.
func DashboardHandler(svc *geminichat.Service, logger zerolog.Logger) http.HandlerFunc {
	log := logger.With().Str("handler", "dashboard").Logger()
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			log.Error().Msg("chat service not initialized")
			writeError(w, http.StatusInternalServerError, CodeInternalError, "service not available")
			return
		}

		// Fetch raw data
		snap := svc.Stats().Snapshot()
		rt := svc.Stats().Runtime()
		creds := svc.Keyring().Snapshot()
		uptime := int64(time.Since(rt.StartedAt).Seconds())

		// --- Transform data ---

		// Service Status
		// The HTTP surface is online as long as this handler runs, so the key
		// pool carries the interesting state: every key disabled means chat is
		// effectively down, a partially disabled pool is degraded.
		enabledKeys := 0
		for _, c := range creds {
			if c.Enabled {
				enabledKeys++
			}
		}
		poolStatus := StatusOnline
		switch {
		case enabledKeys == 0:
			poolStatus = StatusOffline
		case enabledKeys < len(creds):
			poolStatus = StatusDegraded
		}
		serviceStatus := []ServiceStatusItem{
			{Name: "Gemini Chat Service", Status: StatusOnline, UptimeSeconds: uptime},
			{Name: "API Key Pool", Status: poolStatus, UptimeSeconds: uptime},
		}

		// Recent Errors
		recentErrors := make([]RecentErrorItem, len(snap.RecentErrors))
		for i, detail := range snap.RecentErrors {
			recentErrors[i] = RecentErrorItem{
				Timestamp: detail.Timestamp,
				Message:   fmt.Sprintf("Type: %s, Key: %s, Model: %s, Details: %s", detail.ErrorType, detail.APIKeyID, detail.Model, detail.Message),
				Source:    detail.Source,
			}
		}

		// Chat Statistics
		stats := ChatStatistics{
			TotalRequests:      snap.TotalRequests,
			SuccessfulRequests: snap.TotalSuccesses,
			FailedRequests:     snap.TotalFailures,
			AverageLatencyMs:   float64(snap.AverageLatencyMicroseconds) / 1000.0,
			CacheHits:          snap.CacheHits,
			CacheMisses:        snap.CacheMisses,
			CacheSize:          svc.Cache().Size(),
			Models:             make(map[string]ModelRequestStats, len(snap.Models)),
		}
		if snap.TotalRequests > 0 {
			stats.OverallSuccessRatePercent = float64(snap.TotalSuccesses) / float64(snap.TotalRequests) * 100
		}
		if lookups := snap.CacheHits + snap.CacheMisses; lookups > 0 {
			stats.CacheHitRatePercent = float64(snap.CacheHits) / float64(lookups) * 100
		}
		for name, ms := range snap.Models {
			stats.Models[name] = ModelRequestStats{
				TotalRequests:      ms.Requests,
				SuccessfulRequests: ms.Successes,
				FailedRequests:     ms.Failures,
			}
		}

		// API Key Performance
		keyPerformance := make([]ApiKeyPerformanceItem, len(creds))
		for i, c := range creds {
			item := ApiKeyPerformanceItem{
				KeyAlias:           c.Name,
				TotalRequests:      c.Requests,
				SuccessfulRequests: c.Successes,
				FailedRequests:     c.Failures,
				AverageLatencyMs:   float64(c.AverageLatencyMicroseconds) / 1000.0,
				IsEnabled:          c.Enabled,
			}
			if c.Requests > 0 {
				item.SuccessRatePercent = float64(c.Successes) / float64(c.Requests) * 100
			}
			keyPerformance[i] = item
		}
		// Busiest credentials first so the heaviest rotation slots lead the table.
		sort.SliceStable(keyPerformance, func(i, j int) bool {
			return keyPerformance[i].TotalRequests > keyPerformance[j].TotalRequests
		})

		// System Information
		systemInfo := SystemInformation{
			MemoryUsageMB: formatBytesForAPI(rt.MemAllocBytes),
			TotalMemoryMB: formatBytesForAPI(rt.MemSysBytes),
			UptimeSeconds: uptime,
			GoVersion:     rt.GoVersion,
			Goroutines:    rt.NumGoroutine,
		}

		writeJSON(w, http.StatusOK, DashboardData{
			LastUpdated:       time.Now().UTC(),
			ServiceStatus:     serviceStatus,
			RecentErrors:      recentErrors,
			Statistics:        stats,
			APIKeyPerformance: keyPerformance,
			SystemInformation: systemInfo,
		})
	}
}

// formatBytesForAPI converts byte counts into megabytes rounded to two
// decimals, the unit the dashboard displays.
func formatBytesForAPI(b uint64) float64 {
	return math.Round(float64(b)/(1024*1024)*100) / 100
}
