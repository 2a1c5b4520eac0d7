package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/askanna-io/askanna-core/internal/filestore"
	"github.com/askanna-io/askanna-core/internal/run"
	"github.com/askanna-io/askanna-core/internal/store"
)

// abortWithError maps domain errors onto the HTTP error taxonomy. Unknown
// errors become a plain 500 without leaking internals.
func abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		abortNotFound(c)
	case errors.Is(err, run.ErrInvalidPayload), errors.Is(err, run.ErrNoPackage):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
	case errors.Is(err, filestore.ErrIntegrityMismatch), errors.Is(err, filestore.ErrAlreadyComplete),
		errors.Is(err, store.ErrConflict), errors.Is(err, run.ErrInvalidTransition):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"detail": err.Error()})
	case errors.Is(err, filestore.ErrRangeNotSatisfiable):
		c.AbortWithStatus(http.StatusRequestedRangeNotSatisfiable)
	case errors.Is(err, store.ErrTimeout):
		c.AbortWithStatusJSON(http.StatusGatewayTimeout, gin.H{"detail": "operation timed out"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
	}
}

// abortNotFound is the uniform not-found answer, also used for RBAC-denied
// reads on private objects so denial does not leak existence.
func abortNotFound(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"detail": "Not found."})
}

// abortForbidden is used when the target is visible but the action is not
// permitted.
func abortForbidden(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "You do not have permission to perform this action."})
}

// abortUnauthorized is used for anonymous calls to identity-requiring
// endpoints.
func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided."})
}
