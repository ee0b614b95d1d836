package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers handles system monitoring endpoints
type SystemHandlers struct {
	log       zerolog.Logger
	settings  optimization.SolverSettings
	historyDB *database.DB
	startedAt time.Time

	// Overridable in tests; gopsutil sampling blocks for the CPU interval.
	systemStats func() (float64, float64)
}

// NewSystemHandlers creates a new system handlers instance. historyDB may be nil.
func NewSystemHandlers(log zerolog.Logger, settings optimization.SolverSettings, historyDB *database.DB, startedAt time.Time) *SystemHandlers {
	h := &SystemHandlers{
		log:       log.With().Str("service", "system").Logger(),
		settings:  settings,
		historyDB: historyDB,
		startedAt: startedAt,
	}
	h.systemStats = h.getSystemStats
	return h
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status        string  `json:"status"` // "healthy" or "degraded"
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	HistoryDB     string  `json:"history_db"` // "ok", "unavailable" or "disabled"
	Solver        struct {
		MaxIterations int     `json:"max_iterations"`
		Tolerance     float64 `json:"tolerance"`
	} `json:"solver"`
	Methods []optimization.Method `json:"methods"`
}

// HandleSystemStatus returns process health, host load and solver settings
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, memPercent := h.systemStats()

	resp := SystemStatusResponse{
		Status:        "healthy",
		Version:       Version,
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		HistoryDB:     "disabled",
		Methods:       optimization.AllMethods(),
	}
	resp.Solver.MaxIterations = h.settings.MaxIterations
	resp.Solver.Tolerance = h.settings.Tolerance

	if h.historyDB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.historyDB.QuickCheck(ctx); err != nil {
			h.log.Warn().Err(err).Msg("History database check failed")
			resp.HistoryDB = "unavailable"
			resp.Status = "degraded"
		} else {
			resp.HistoryDB = "ok"
		}
	}

	writeJSON(w, http.StatusOK, resp, h.log)
}

// DatabaseStatsResponse is the body of GET /api/system/database/stats
type DatabaseStatsResponse struct {
	Enabled bool    `json:"enabled"`
	Path    string  `json:"path,omitempty"`
	Profile string  `json:"profile,omitempty"`
	SizeMB  float64 `json:"size_mb"`
	Symbols int     `json:"symbols"`
	Rows    int     `json:"rows"`
}

// HandleDatabaseStats returns price history database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	if h.historyDB == nil {
		writeJSON(w, http.StatusOK, DatabaseStatsResponse{}, h.log)
		return
	}

	resp := DatabaseStatsResponse{
		Enabled: true,
		Path:    h.historyDB.Path(),
		Profile: string(h.historyDB.Profile()),
	}
	if info, err := os.Stat(h.historyDB.Path()); err == nil {
		resp.SizeMB = float64(info.Size()) / 1024 / 1024
	}

	err := h.historyDB.Conn().QueryRowContext(r.Context(),
		"SELECT COUNT(DISTINCT symbol), COUNT(*) FROM daily_prices").Scan(&resp.Symbols, &resp.Rows)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query database stats")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to query database stats"}, h.log)
		return
	}

	writeJSON(w, http.StatusOK, resp, h.log)
}

// getSystemStats returns CPU and RAM usage percentages.
// The 100ms CPU sample keeps the endpoint responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
