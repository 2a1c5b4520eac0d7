package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/rbac"
)

// resolveFileScope loads a file and gates it on the permission implied by
// its owner's ancestry. Files owned by runs and packages resolve through the
// owning project.
func (s *Server) resolveFileScope(c *gin.Context, perm rbac.Permission) (*models.File, bool) {
	f, err := s.store.GetFileBySUUID(c.Request.Context(), c.Param("suuid"))
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	ref, err := s.store.GetObjectReference(c.Request.Context(), f.CreatedFor)
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}

	project, err := s.projectForOwner(c, ref)
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	if project == nil {
		// User and membership owned files (avatars) are the owner's own.
		return f, true
	}
	target, ok := s.projectTarget(c, project)
	if !ok {
		return nil, false
	}
	if !requireProjectPermission(c, actorFrom(c), perm, target) {
		return nil, false
	}
	return f, true
}

// projectForOwner walks from a file owner to its project, or nil when the
// owner kind has no project ancestry.
func (s *Server) projectForOwner(c *gin.Context, ref *models.ObjectReference) (*models.Project, error) {
	ctx := c.Request.Context()
	switch ref.OwnerKind {
	case models.OwnerPackage:
		pkg, err := s.store.GetPackageByUUID(ctx, ref.OwnerUUID)
		if err != nil {
			return nil, err
		}
		return s.store.GetProjectByUUID(ctx, pkg.ProjectUUID)
	case models.OwnerRun, models.OwnerRunResult, models.OwnerRunArtifact:
		r, err := s.store.GetRunByUUID(ctx, ref.OwnerUUID)
		if err != nil {
			return nil, err
		}
		job, err := s.store.GetJobByUUID(ctx, r.JobUUID)
		if err != nil {
			return nil, err
		}
		return s.store.GetProjectByUUID(ctx, job.ProjectUUID)
	default:
		return nil, nil
	}
}

// uploadPart handles PUT /v1/storage/file/{suuid}/part/. The part number
// comes from the part_number query or form field; the body is the raw part.
func (s *Server) uploadPart(c *gin.Context) {
	f, ok := s.resolveFileScope(c, rbac.PermProjectCodeCreate)
	if !ok {
		return
	}

	partNumber, err := strconv.Atoi(c.DefaultQuery("part_number", c.PostForm("part_number")))
	if err != nil || partNumber < 1 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid part_number"})
		return
	}

	var content io.Reader = c.Request.Body
	if file, err := c.FormFile("part"); err == nil {
		opened, err := file.Open()
		if err != nil {
			abortWithError(c, err)
			return
		}
		defer opened.Close()
		content = opened
	}

	if err := s.files.UploadPart(c.Request.Context(), f, partNumber, content); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suuid": f.SUUID, "part_number": partNumber})
}

// completeFile handles POST /v1/storage/file/{suuid}/complete/. A size or
// etag mismatch answers 409 and keeps the parts for a retry.
func (s *Server) completeFile(c *gin.Context) {
	f, ok := s.resolveFileScope(c, rbac.PermProjectCodeCreate)
	if !ok {
		return
	}

	ref, err := s.store.GetObjectReference(c.Request.Context(), f.CreatedFor)
	if err != nil {
		abortWithError(c, err)
		return
	}

	var completed *models.File
	if ref.OwnerKind == models.OwnerPackage {
		// Package uploads run the config pipeline on completion.
		pkg, err := s.store.GetPackageByUUID(c.Request.Context(), ref.OwnerUUID)
		if err != nil {
			abortWithError(c, err)
			return
		}
		completed, err = s.packages.Finalize(c.Request.Context(), pkg, f)
		if err != nil {
			abortWithError(c, err)
			return
		}
	} else {
		completed, err = s.files.Complete(c.Request.Context(), f)
		if err != nil {
			abortWithError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, s.fileDetail(completed))
}

// downloadFile handles GET /v1/storage/file/{suuid}/download/ with Range and
// Response-Content-Disposition support.
func (s *Server) downloadFile(c *gin.Context) {
	f, ok := s.resolveFileScope(c, rbac.PermProjectCodeList)
	if !ok {
		return
	}
	s.serveFile(c, f)
}

// serveFile streams a completed file, honoring a Range header.
func (s *Server) serveFile(c *gin.Context, f *models.File) {
	if !f.IsComplete() {
		abortNotFound(c)
		return
	}

	disposition := c.Query("response-content-disposition")
	if disposition == "" {
		disposition = fmt.Sprintf("attachment; filename=%q", f.Name)
	}
	c.Header("Content-Disposition", disposition)
	c.Header("Accept-Ranges", "bytes")
	c.Header("ETag", fmt.Sprintf("%q", f.Etag))

	if rangeHeader := c.GetHeader("Range"); rangeHeader != "" {
		r, br, err := s.files.OpenRange(c.Request.Context(), f, rangeHeader)
		if err != nil {
			abortWithError(c, err)
			return
		}
		defer r.Close()
		c.Header("Content-Range", br.ContentRange(f.Size))
		c.DataFromReader(http.StatusPartialContent, br.Length(), f.ContentType, r, nil)
		return
	}

	r, err := s.files.Open(c.Request.Context(), f)
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer r.Close()
	c.DataFromReader(http.StatusOK, f.Size, f.ContentType, r, nil)
}

// fileDetail is the external file representation.
func (s *Server) fileDetail(f *models.File) gin.H {
	return gin.H{
		"suuid":        f.SUUID,
		"name":         f.Name,
		"size":         f.Size,
		"etag":         f.Etag,
		"content_type": f.ContentType,
		"completed_at": f.CompletedAt,
	}
}
