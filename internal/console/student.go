package console

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"attendclient/internal/geo"
	"attendclient/internal/model"
)

func (s *server) studentCourses(c *gin.Context) {
	courses, err := s.API.SearchCourses(c.Request.Context(), queryInt(c, "offset", 0), queryInt(c, "limit", 10), c.Query("q"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

// verifyLocation checks a position against the session geofence. Without
// coordinates in the body the console's own locator is asked for a fix.
func (s *server) verifyLocation(c *gin.Context) {
	ctx := c.Request.Context()
	var coords *model.Coordinates
	if c.Request.ContentLength > 0 {
		coords = &model.Coordinates{}
		if err := c.ShouldBindJSON(coords); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if coords == nil {
		if s.Locator == nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": geo.FailureMessage})
			return
		}
		fix, err := s.Locator.Acquire(ctx)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": geo.FailureMessage, "code": geo.ErrorCode(err).String()})
			return
		}
		coords = &fix
	}
	check, err := s.API.VerifyLocation(ctx, c.Param("id"), *coords)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"check": check, "location": coords})
}
