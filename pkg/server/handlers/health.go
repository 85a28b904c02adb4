package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/robomem"
	"github.com/soundprediction/robomem/pkg/driver"
)

// Build information - can be set at build time using ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

const serviceName = "robomem"

// connectivityChecker is implemented by stores with a remote backend.
type connectivityChecker interface {
	VerifyConnectivity(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	memory  robomem.Memory
	store   driver.GraphStore
	started time.Time
}

// NewHealthHandler creates a new health handler. store may be nil.
func NewHealthHandler(m robomem.Memory, store driver.GraphStore) *HealthHandler {
	return &HealthHandler{
		memory:  m,
		store:   store,
		started: time.Now(),
	}
}

// HealthCheck handles GET /health - basic liveness check
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

// LivenessCheck handles GET /live - Kubernetes liveness probe endpoint
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadinessCheck handles GET /ready
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := gin.H{}
	allHealthy := true

	if h.memory == nil {
		checks["memory"] = gin.H{"status": "unhealthy", "error": "memory not initialized"}
		allHealthy = false
	} else {
		start := time.Now()
		stats, err := h.memory.Stats(ctx)
		if err != nil {
			checks["memory"] = gin.H{"status": "unhealthy", "error": err.Error()}
			allHealthy = false
		} else {
			checks["memory"] = gin.H{
				"status":      "healthy",
				"robot_nodes": stats.RobotNodes,
				"world_nodes": stats.WorldNodes,
				"duration":    time.Since(start).String(),
			}
		}
	}

	if h.store != nil {
		check := gin.H{"status": "healthy", "provider": string(h.store.Provider())}
		if cc, ok := h.store.(connectivityChecker); ok {
			start := time.Now()
			if err := cc.VerifyConnectivity(ctx); err != nil {
				check["status"] = "unhealthy"
				check["error"] = err.Error()
				allHealthy = false
			}
			check["duration"] = time.Since(start).String()
		}
		checks["store"] = check
	}

	checks["system"] = gin.H{
		"status": "healthy",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}

	response := gin.H{
		"status":    "ready",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}
	if !allHealthy {
		response["status"] = "not_ready"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// DetailedHealthCheck handles GET /health/detailed - build and runtime information
func (h *HealthHandler) DetailedHealthCheck(c *gin.Context) {
	m := h.getSystemMetrics()
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": Version,
		"build_info": gin.H{
			"git_commit": GitCommit,
			"build_time": BuildTime,
			"go_version": GoVersion,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"system":    m,
	})
}

// SystemMetrics holds system runtime metrics
type SystemMetrics struct {
	MemoryUsage string `json:"memory_usage"`
	Goroutines  int    `json:"goroutines"`
	GCCycles    uint32 `json:"gc_cycles"`
	HeapObjects uint64 `json:"heap_objects"`
}

// getSystemMetrics collects current system runtime metrics
func (h *HealthHandler) getSystemMetrics() SystemMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemMetrics{
		MemoryUsage: fmt.Sprintf("%.2f MB", float64(m.Alloc)/(1024*1024)),
		Goroutines:  runtime.NumGoroutine(),
		GCCycles:    m.NumGC,
		HeapObjects: m.HeapObjects,
	}
}
