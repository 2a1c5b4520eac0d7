package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/rbac"
)

const actorKey = "askanna.actor"

// requestContext resolves the caller once per request: the user behind the
// Authorization token plus their workspace memberships. The resulting actor
// is attached to the request and never recomputed mid-request, so every RBAC
// decision in one request sees the same state.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := rbac.Actor{Memberships: map[uuid.UUID]string{}}

		if token := bearerToken(c.GetHeader("Authorization")); token != "" {
			user, err := s.store.GetUserByAuthToken(c.Request.Context(), token)
			if err == nil && user.IsActive {
				memberships, err := s.store.MembershipsForUser(c.Request.Context(), user.UUID)
				if err != nil {
					log.Warn().Err(err).Str("user", user.SUUID).Msg("Failed to resolve memberships")
					memberships = map[uuid.UUID]string{}
				}
				actor = rbac.Actor{User: user, Memberships: memberships}
			}
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// bearerToken strips the "Token" scheme used by the API clients.
func bearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Token") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// actorFrom returns the actor resolved by the request context middleware.
func actorFrom(c *gin.Context) rbac.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(rbac.Actor); ok {
			return actor
		}
	}
	return rbac.Actor{Memberships: map[uuid.UUID]string{}}
}

// projectTarget loads a project's workspace and builds the RBAC target.
func (s *Server) projectTarget(c *gin.Context, project *models.Project) (rbac.Target, bool) {
	ws, err := s.store.GetWorkspaceByUUID(c.Request.Context(), project.WorkspaceUUID)
	if err != nil {
		abortWithError(c, err)
		return rbac.Target{}, false
	}
	return rbac.Target{Workspace: ws, Project: project}, true
}

// requireProjectPermission gates an action on a project. A caller who cannot
// even see the project gets a 404 so denial does not reveal existence; a
// caller who can see it but lacks the action gets a 403.
func requireProjectPermission(c *gin.Context, actor rbac.Actor, perm rbac.Permission, target rbac.Target) bool {
	if rbac.Allow(actor, perm, target) {
		return true
	}
	if rbac.Allow(actor, rbac.PermProjectInfo, target) {
		abortForbidden(c)
		return false
	}
	abortNotFound(c)
	return false
}

// requireWorkspacePermission gates an action on a workspace with the same
// not-found masking.
func requireWorkspacePermission(c *gin.Context, actor rbac.Actor, perm rbac.Permission, target rbac.Target) bool {
	if rbac.Allow(actor, perm, target) {
		return true
	}
	if rbac.Allow(actor, rbac.PermWorkspaceInfo, target) {
		abortForbidden(c)
		return false
	}
	abortNotFound(c)
	return false
}
