package auth

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"attendclient/internal/model"
)

// Landing pages.
const (
	LoginPath    = "/login"
	StudentPath  = "/student"
	LecturerPath = "/lecturer"
)

const stateKey = "auth"

// HomePath returns the landing page of role.
func HomePath(role model.Role) string {
	switch role {
	case model.RoleLecturer, model.RoleAdmin:
		return LecturerPath
	case model.RoleStudent:
		return StudentPath
	default:
		return LoginPath
	}
}

// Staff are the roles allowed on the lecturer pages.
var Staff = []model.Role{model.RoleLecturer, model.RoleAdmin}

// RequireRole lets a request through only when the persisted login state
// holds one of roles. Anonymous requests get 401 with a redirect to the
// login page. A wrong role gets 403 with a redirect to that role's home.
func RequireRole(st *Store, roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, err := st.Load(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to read login state"})
			return
		}
		if !state.Authenticated {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated", "redirect": LoginPath})
			return
		}
		if len(roles) > 0 && !slices.Contains(roles, state.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied", "redirect": state.HomePath()})
			return
		}
		c.Set(stateKey, state)
		c.Next()
	}
}

// FromContext returns the state stored by RequireRole.
func FromContext(c *gin.Context) (State, bool) {
	v, ok := c.Get(stateKey)
	if !ok {
		return State{}, false
	}
	st, ok := v.(State)
	return st, ok
}
