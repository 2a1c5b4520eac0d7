package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/askanna-io/askanna-core/internal/packages"
	"github.com/askanna-io/askanna-core/internal/rbac"
)

type createPackageRequest struct {
	ProjectSUUID string `json:"project_suuid" binding:"required"`
	Description  string `json:"description"`
	Size         int64  `json:"size" binding:"required"`
	Etag         string `json:"etag" binding:"required"`
}

// createPackage handles POST /v1/package/: it reserves the package row and
// the file slot the archive parts are uploaded into.
func (s *Server) createPackage(c *gin.Context) {
	var req createPackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	project, err := s.store.GetProjectBySUUID(c.Request.Context(), req.ProjectSUUID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	target, ok := s.projectTarget(c, project)
	if !ok {
		return
	}
	actor := actorFrom(c)
	if actor.Anonymous() {
		abortUnauthorized(c)
		return
	}
	if !requireProjectPermission(c, actor, rbac.PermProjectCodeCreate, target) {
		return
	}

	in := packages.CreateInput{
		Project:     project,
		Description: req.Description,
		Size:        req.Size,
		Etag:        req.Etag,
		CreatedBy:   &actor.User.UUID,
	}
	pkg, slot, err := s.packages.Create(c.Request.Context(), in)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"suuid": pkg.SUUID,
		"file":  s.fileDetail(slot),
	})
}
