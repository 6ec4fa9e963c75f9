package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const sessionTTL = 12 * time.Hour

var errInvalidCredentials = errors.New("invalid credentials")

// authEnabled reports whether the web UI is password protected.
func (s *server) authEnabled() bool { return s.passwordHash != nil }

// authenticate checks the shared web password and issues a session token.
func (s *server) authenticate(password string) (string, error) {
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return "", errInvalidCredentials
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sid": uuid.NewString(),
		"exp": time.Now().Add(sessionTTL).Unix(),
		"iat": time.Now().Unix(),
	})
	return token.SignedString(s.jwtSecret)
}

func (s *server) loginHandler(c *gin.Context) {
	if !s.authEnabled() {
		c.JSON(http.StatusNotFound, gin.H{"error": "authentication is not enabled"})
		return
	}
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := s.authenticate(req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_in": int(sessionTTL.Seconds())})
}

// jwtAuthMiddleware stores the session id under "session". Without a password every
// request shares the empty session.
func (s *server) jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.authEnabled() {
			c.Set("session", "")
			c.Next()
			return
		}
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(authHeader) < 8 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			c.Abort()
			return
		}
		token, err := jwt.Parse(authHeader[7:], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrInvalidKeyType
			}
			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		sid, _ := claims["sid"].(string)
		if !ok || sid == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			c.Abort()
			return
		}
		c.Set("session", sid)
		c.Next()
	}
}

func sessionFromContext(c *gin.Context) string {
	sid, _ := c.Get("session")
	s, _ := sid.(string)
	return s
}
