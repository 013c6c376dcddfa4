package console

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"attendclient/internal/auth"
)

type loginRequest struct {
	UserIdentifier string `json:"userIdentifier" binding:"required"`
	PIN            string `json:"pin" binding:"required"`
}

func (s *server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User ID and PIN are required"})
		return
	}
	ctx := c.Request.Context()
	sess, err := s.API.Login(ctx, req.UserIdentifier, req.PIN)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.Auth.Save(ctx, sess); err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Info("user logged in", "user_id", sess.User.ID, "role", sess.User.Role)
	c.JSON(http.StatusOK, gin.H{"user": sess.User, "redirect": auth.HomePath(sess.User.Role)})
}

func (s *server) logout(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.API.Logout(ctx); err != nil {
		s.logger.Warn("remote logout failed", "err", err)
	}
	if err := s.Auth.Clear(ctx); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redirect": auth.LoginPath})
}

func (s *server) authCheck(c *gin.Context) {
	ctx := c.Request.Context()
	sess, err := s.API.AuthCheck(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.Auth.Save(ctx, sess); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "user": sess.User, "redirect": auth.HomePath(sess.User.Role)})
}
