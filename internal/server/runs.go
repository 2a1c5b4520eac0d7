package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/rbac"
	"github.com/askanna-io/askanna-core/internal/run"
	"github.com/askanna-io/askanna-core/internal/tracking"
)

// agentHeader carries the client identity that determines the run trigger.
const agentHeader = "askanna-agent"

// runScope bundles a run with its resolved ancestry.
type runScope struct {
	run    *models.Run
	job    *models.JobDef
	target rbac.Target
}

// resolveRun loads a run and its job, project and workspace. Any missing
// ancestor answers 404.
func (s *Server) resolveRun(c *gin.Context) (*runScope, bool) {
	r, err := s.store.GetRunBySUUID(c.Request.Context(), c.Param("suuid"))
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	job, err := s.store.GetJobByUUID(c.Request.Context(), r.JobUUID)
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	project, err := s.store.GetProjectByUUID(c.Request.Context(), job.ProjectUUID)
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	target, ok := s.projectTarget(c, project)
	if !ok {
		return nil, false
	}
	return &runScope{run: r, job: job, target: target}, true
}

// createRun handles POST /v1/job/{suuid}/run/request/batch. The body is the
// run payload; name and description come from query parameters so any JSON
// document can be the payload.
func (s *Server) createRun(c *gin.Context) {
	job, err := s.store.GetJobBySUUID(c.Request.Context(), c.Param("suuid"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	project, err := s.store.GetProjectByUUID(c.Request.Context(), job.ProjectUUID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	target, ok := s.projectTarget(c, project)
	if !ok {
		return
	}
	actor := actorFrom(c)
	if !requireProjectPermission(c, actor, rbac.PermProjectRunCreate, target) {
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		abortWithError(c, err)
		return
	}

	var createdBy *models.User
	if !actor.Anonymous() {
		createdBy = actor.User
	}
	in := run.CreateInput{
		Job:         job,
		Name:        c.Query("name"),
		Description: c.Query("description"),
		Payload:     payload,
		Trigger:     models.TriggerFromAgent(c.GetHeader(agentHeader)),
	}
	if createdBy != nil {
		in.CreatedBy = &createdBy.UUID
	}

	created, err := s.runs.Create(c.Request.Context(), in)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.runResponse(c, created))
}

// runDetail handles GET /v1/run/{suuid}.
func (s *Server) runDetail(c *gin.Context) {
	scope, ok := s.resolveRun(c)
	if !ok {
		return
	}
	if !requireProjectPermission(c, actorFrom(c), rbac.PermProjectRunList, scope.target) {
		return
	}
	c.JSON(http.StatusOK, s.runResponse(c, scope.run))
}

type statusUpdateRequest struct {
	Status   string `json:"status" binding:"required"`
	ExitCode *int   `json:"exit_code"`
}

// updateRunStatus handles PATCH /v1/run/{suuid}/status/. Used by the worker
// to report lifecycle progress.
func (s *Server) updateRunStatus(c *gin.Context) {
	scope, ok := s.resolveRun(c)
	if !ok {
		return
	}
	if !requireProjectPermission(c, actorFrom(c), rbac.PermProjectRunEdit, scope.target) {
		return
	}

	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	ctx := c.Request.Context()
	var updated *models.Run
	var err error
	switch models.RunStatus(req.Status) {
	case models.RunPending:
		updated, err = s.runs.ToPending(ctx, scope.run.UUID)
	case models.RunInProgress:
		updated, err = s.runs.ToInProgress(ctx, scope.run.UUID)
	case models.RunCompleted:
		if req.ExitCode != nil && *req.ExitCode != 0 {
			updated, err = s.runs.ToFailed(ctx, scope.run.UUID, req.ExitCode)
		} else {
			updated, err = s.runs.ToCompleted(ctx, scope.run.UUID)
		}
	case models.RunFailed:
		updated, err = s.runs.ToFailed(ctx, scope.run.UUID, req.ExitCode)
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "unknown status " + req.Status})
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.runResponse(c, updated))
}

// runLog handles GET /v1/run/{suuid}/log with offset/limit pagination;
// limit=-1 returns the full queue.
func (s *Server) runLog(c *gin.Context) {
	scope, ok := s.resolveRun(c)
	if !ok {
		return
	}
	if !requireProjectPermission(c, actorFrom(c), rbac.PermProjectRunList, scope.target) {
		return
	}

	offset, _ := strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "-1"), 10, 64)
	if err != nil {
		limit = -1
	}

	entries, total, err := s.logs.Snapshot(c.Request.Context(), scope.run.SUUID, offset, limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": total, "results": entries})
}

type appendLogRequest struct {
	Message   string     `json:"message" binding:"required"`
	Timestamp *time.Time `json:"timestamp"`
}

// appendRunLog handles POST /v1/run/{suuid}/log/, the worker's log feed.
func (s *Server) appendRunLog(c *gin.Context) {
	scope, ok := s.resolveRun(c)
	if !ok {
		return
	}
	if !requireProjectPermission(c, actorFrom(c), rbac.PermProjectRunEdit, scope.target) {
		return
	}

	var req appendLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	entry, err := s.logs.Append(c.Request.Context(), scope.run.SUUID, req.Message, req.Timestamp)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// runResult handles GET /v1/run/{suuid}/result with Range support.
func (s *Server) runResult(c *gin.Context) {
	scope, ok := s.resolveRun(c)
	if !ok {
		return
	}
	if !requireProjectPermission(c, actorFrom(c), rbac.PermProjectRunList, scope.target) {
		return
	}
	if scope.run.ResultFile == nil {
		abortNotFound(c)
		return
	}
	f, err := s.store.GetFileByUUID(c.Request.Context(), *scope.run.ResultFile)
	if err != nil {
		abortWithError(c, err)
		return
	}
	s.serveFile(c, f)
}

type metricBatchRequest struct {
	Metrics []tracking.MetricEvent `json:"metrics"`
}

// updateMetrics handles PUT /v1/run/{suuid}/metric/, replacing the batch.
func (s *Server) updateMetrics(c *gin.Context) {
	scope, ok := s.resolveRun(c)
	if !ok {
		return
	}
	if !requireProjectPermission(c, actorFrom(c), rbac.PermProjectRunEdit, scope.target) {
		return
	}

	var req metricBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if err := s.tracking.UpdateMetrics(c.Request.Context(), scope.run, req.Metrics); err != nil {
		if errors.Is(err, tracking.ErrAlreadyRecomputing) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"detail": err.Error()})
			return
		}
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

type variableBatchRequest struct {
	Variables []tracking.VariableEvent `json:"variables"`
}

// updateVariables handles PATCH /v1/run/{suuid}/variable/, replacing the
// batch with secret masking applied.
func (s *Server) updateVariables(c *gin.Context) {
	scope, ok := s.resolveRun(c)
	if !ok {
		return
	}
	if !requireProjectPermission(c, actorFrom(c), rbac.PermProjectRunEdit, scope.target) {
		return
	}

	var req variableBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if err := s.tracking.UpdateVariables(c.Request.Context(), scope.run, req.Variables); err != nil {
		if errors.Is(err, tracking.ErrAlreadyRecomputing) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"detail": err.Error()})
			return
		}
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// runResponse is the external run representation.
func (s *Server) runResponse(c *gin.Context, r *models.Run) gin.H {
	resp := gin.H{
		"suuid":       r.SUUID,
		"name":        r.Name,
		"description": r.Description,
		"status":      r.Status,
		"trigger":     r.Trigger,
		"created_at":  r.CreatedAt.UTC(),
		"modified_at": r.ModifiedAt.UTC(),
		"started_at":  r.StartedAt,
		"finished_at": r.FinishedAt,
		"duration":    r.Duration,
		"exit_code":   r.ExitCode,
		"environment": gin.H{"image": r.EnvironmentImage, "timezone": r.Timezone},
	}
	resp["payload_file"] = s.fileResponse(c, r.PayloadFile)
	resp["result_file"] = s.fileResponse(c, r.ResultFile)
	resp["log_file"] = s.fileResponse(c, r.LogFile)
	if r.MetricsMeta != nil {
		resp["metrics_meta"] = r.MetricsMeta
	}
	if r.VariablesMeta != nil {
		resp["variables_meta"] = r.VariablesMeta
	}
	return resp
}

// fileResponse renders a file reference, nil when absent.
func (s *Server) fileResponse(c *gin.Context, id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	f, err := s.store.GetFileByUUID(c.Request.Context(), *id)
	if err != nil {
		return nil
	}
	return gin.H{
		"suuid":        f.SUUID,
		"name":         f.Name,
		"size":         f.Size,
		"etag":         f.Etag,
		"content_type": f.ContentType,
	}
}
