package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/askanna-io/askanna-core/internal/account"
	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/rbac"
)

type createWorkspaceRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
}

// createWorkspace handles POST /v1/workspace/.
func (s *Server) createWorkspace(c *gin.Context) {
	actor := actorFrom(c)
	if actor.Anonymous() {
		abortUnauthorized(c)
		return
	}
	if !rbac.Allow(actor, rbac.PermWorkspaceCreate, rbac.Target{}) {
		abortForbidden(c)
		return
	}

	var req createWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	visibility, ok := parseVisibility(req.Visibility)
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "visibility must be PRIVATE or PUBLIC"})
		return
	}

	ws, err := s.accounts.CreateWorkspace(c.Request.Context(), req.Name, req.Description, visibility, actor.User)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"suuid":      ws.SUUID,
		"name":       ws.Name,
		"visibility": ws.Visibility,
	})
}

type createProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
}

// createProject handles POST /v1/workspace/{suuid}/project/.
func (s *Server) createProject(c *gin.Context) {
	ws, err := s.store.GetWorkspaceBySUUID(c.Request.Context(), c.Param("suuid"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	actor := actorFrom(c)
	target := rbac.Target{Workspace: ws}
	if !requireWorkspacePermission(c, actor, rbac.PermWorkspaceProjectCreate, target) {
		return
	}

	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	visibility, ok := parseVisibility(req.Visibility)
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "visibility must be PRIVATE or PUBLIC"})
		return
	}

	project, err := s.accounts.CreateProject(c.Request.Context(), ws, req.Name, req.Description, visibility, actor.User)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"suuid":      project.SUUID,
		"name":       project.Name,
		"workspace":  ws.SUUID,
		"visibility": project.Visibility,
	})
}

type createInvitationRequest struct {
	Email    string `json:"email" binding:"required"`
	RoleCode string `json:"role_code"`
}

// createInvitation handles POST /v1/workspace/{suuid}/invite/.
func (s *Server) createInvitation(c *gin.Context) {
	ws, err := s.store.GetWorkspaceBySUUID(c.Request.Context(), c.Param("suuid"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	actor := actorFrom(c)
	if !requireWorkspacePermission(c, actor, rbac.PermWorkspaceInvitationCreate, rbac.Target{Workspace: ws}) {
		return
	}

	var req createInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	roleCode := req.RoleCode
	if roleCode == "" {
		roleCode = rbac.CodeWorkspaceMember
	}

	invitation, err := s.accounts.Invite(c.Request.Context(), ws, req.Email, roleCode, actor.User)
	if err != nil {
		if errors.Is(err, account.ErrAlreadyMember) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"detail": err.Error()})
			return
		}
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"suuid":     invitation.SUUID,
		"email":     invitation.Email,
		"role_code": invitation.RoleCode,
		"token":     invitation.InvitationToken,
	})
}

type acceptInvitationRequest struct {
	Token string `json:"token" binding:"required"`
}

// acceptInvitation handles POST /v1/workspace/{suuid}/invite/{membership}/accept/.
func (s *Server) acceptInvitation(c *gin.Context) {
	actor := actorFrom(c)
	if actor.Anonymous() {
		abortUnauthorized(c)
		return
	}

	membership, err := s.store.GetMembershipBySUUID(c.Request.Context(), c.Param("membership"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	var req acceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	accepted, err := s.accounts.AcceptInvitation(c.Request.Context(), membership, req.Token, actor.User)
	if err != nil {
		if errors.Is(err, account.ErrInvitationInvalid) || errors.Is(err, account.ErrNotAnInvitation) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"suuid":     accepted.SUUID,
		"role_code": accepted.RoleCode,
	})
}

func parseVisibility(v string) (models.Visibility, bool) {
	switch v {
	case "", string(models.VisibilityPrivate):
		return models.VisibilityPrivate, true
	case string(models.VisibilityPublic):
		return models.VisibilityPublic, true
	default:
		return "", false
	}
}
