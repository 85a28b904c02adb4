package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/robomem"
	"github.com/soundprediction/robomem/pkg/server/dto"
	"github.com/soundprediction/robomem/pkg/spatial"
	"github.com/soundprediction/robomem/pkg/types"
)

// MemoryHandler serves the memory graph API.
type MemoryHandler struct {
	memory robomem.Memory
	logger *slog.Logger
	clock  func() time.Time
}

// NewMemoryHandler creates a new memory handler
func NewMemoryHandler(m robomem.Memory, logger *slog.Logger) *MemoryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryHandler{
		memory: m,
		logger: logger,
		clock:  time.Now,
	}
}

// Ingest handles POST /api/v1/observations
func (h *MemoryHandler) Ingest(c *gin.Context) {
	var req dto.ObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.memory.Ingest(c.Request.Context(), req.Observation())
	if err != nil {
		h.logger.Warn("Observation not ingested", "time", req.Time, "error", err)
		writeError(c, err)
		return
	}
	if res == nil {
		c.JSON(http.StatusAccepted, dto.IngestResponse{Buffered: true})
		return
	}
	c.JSON(http.StatusCreated, dto.IngestResponse{Result: res})
}

// Flush handles POST /api/v1/observations/flush
func (h *MemoryHandler) Flush(c *gin.Context) {
	results, err := h.memory.Flush(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if results == nil {
		results = []*types.IngestResult{}
	}
	c.JSON(http.StatusOK, dto.FlushResponse{Results: results})
}

// Latest handles GET /api/v1/trajectory/latest
func (h *MemoryHandler) Latest(c *gin.Context) {
	node, err := h.memory.Latest(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, node)
}

// NodeAt handles GET /api/v1/trajectory/at?t=
func (h *MemoryHandler) NodeAt(c *gin.Context) {
	t, err := dto.ParseTime(c.Query("t"))
	if err != nil {
		badRequest(c, err)
		return
	}
	node, err := h.memory.NodeAt(c.Request.Context(), t)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, node)
}

// NodesInRange handles GET /api/v1/trajectory/range?from=&to=
func (h *MemoryHandler) NodesInRange(c *gin.Context) {
	var q dto.RangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	from, to, err := q.Bounds()
	if err != nil {
		badRequest(c, err)
		return
	}
	nodes, err := h.memory.NodesInRange(c.Request.Context(), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	if nodes == nil {
		nodes = []*types.RobotNode{}
	}
	c.JSON(http.StatusOK, nodes)
}

// GetRobotNode handles GET /api/v1/trajectory/:id
func (h *MemoryHandler) GetRobotNode(c *gin.Context) {
	node, err := h.memory.GetRobotNode(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, node)
}

// EdgesFrom handles GET /api/v1/trajectory/:id/edges
func (h *MemoryHandler) EdgesFrom(c *gin.Context) {
	edges, err := h.memory.EdgesFrom(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, edges)
}

// Annotations handles GET /api/v1/trajectory/:id/annotations
func (h *MemoryHandler) Annotations(c *gin.Context) {
	notes, err := h.memory.Annotations(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if notes == nil {
		notes = []*types.Annotation{}
	}
	c.JSON(http.StatusOK, notes)
}

// Annotate handles POST /api/v1/trajectory/:id/annotations
func (h *MemoryHandler) Annotate(c *gin.Context) {
	var req dto.AnnotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err)
		return
	}
	note, err := h.memory.Annotate(c.Request.Context(), c.Param("id"), req.Kind, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, note)
}

// Entities handles GET /api/v1/entities
func (h *MemoryHandler) Entities(c *gin.Context) {
	var q dto.EntityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	entities, err := h.memory.Entities(c.Request.Context(), q.Filter())
	if err != nil {
		writeError(c, err)
		return
	}
	if entities == nil {
		entities = []*types.WorldNode{}
	}
	c.JSON(http.StatusOK, entities)
}

// EntitiesNear handles GET /api/v1/entities/near
func (h *MemoryHandler) EntitiesNear(c *gin.Context) {
	var q dto.NearQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	hits, err := h.memory.EntitiesNear(c.Request.Context(), spatial.Position{X: q.X, Y: q.Y, Z: q.Z}, *q.Radius)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, hits)
}

// GetEntity handles GET /api/v1/entities/:id
func (h *MemoryHandler) GetEntity(c *gin.Context) {
	entity, err := h.memory.GetEntity(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}

// History handles GET /api/v1/entities/:id/history
func (h *MemoryHandler) History(c *gin.Context) {
	edges, err := h.memory.ObservationHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, edges)
}

// Describe handles GET /api/v1/describe
func (h *MemoryHandler) Describe(c *gin.Context) {
	text, err := h.memory.Describe(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.DescribeResponse{Description: text})
}

// Decay handles POST /api/v1/maintenance/decay
func (h *MemoryHandler) Decay(c *gin.Context) {
	var req dto.DecayRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	at := h.clock()
	if req.At != nil {
		at = *req.At
	}
	res, err := h.memory.Decay(c.Request.Context(), at)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Snapshot handles GET /api/v1/snapshot
func (h *MemoryHandler) Snapshot(c *gin.Context) {
	snap, err := h.memory.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Stats handles GET /api/v1/stats
func (h *MemoryHandler) Stats(c *gin.Context) {
	stats, err := h.memory.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Verify handles GET /api/v1/verify. Violations are reported with 200 and
// valid=false; the check itself succeeded.
func (h *MemoryHandler) Verify(c *gin.Context) {
	violations, err := h.memory.Verify(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if len(violations) > 0 {
		h.logger.Error("Memory graph invariants violated", "violations", len(violations))
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":      len(violations) == 0,
		"violations": violations,
	})
}
