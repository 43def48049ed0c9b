package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pixelcanvas/internal/auth"
	"pixelcanvas/internal/domain"
)

type credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type userResponse struct {
	ID             int32     `json:"id"`
	Username       string    `json:"username"`
	Credits        int       `json:"credits"`
	NextFreeCredit time.Time `json:"next_free_credit"`
}

func newUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:             u.ID,
		Username:       u.Username,
		Credits:        u.Credits,
		NextFreeCredit: u.NextFreeCredit,
	}
}

func (s *Server) setSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, token, maxAge, "/", "", false, true)
}

func (s *Server) handleRegister(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	token, user, err := s.auth.Register(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, domain.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		s.logger.Error("register", "username", req.Username, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	s.setSessionCookie(c, token, int(s.auth.TTL().Seconds()))
	c.JSON(http.StatusCreated, newUserResponse(user))
}

func (s *Server) handleLogin(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	token, err := s.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	s.setSessionCookie(c, token, int(s.auth.TTL().Seconds()))
	c.Status(http.StatusNoContent)
}

func (s *Server) handleLogout(c *gin.Context) {
	if token, err := c.Cookie(auth.CookieName); err == nil && token != "" {
		if err := s.auth.Logout(c.Request.Context(), token); err != nil {
			s.logger.Warn("logout", "err", err)
		}
	}
	s.setSessionCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUser(c *gin.Context) {
	user, err := s.auth.Authenticate(c.Request)
	switch {
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrSessionExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	case err != nil:
		s.logger.Error("authenticate", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}
