package httpHandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"telemetry-server/entities"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ctxUser      = "user"
	ctxLogger    = "logger"
	headerReqID  = "X-Request-ID"
	bearerPrefix = "bearer "
)

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*entities.User, error)
}

// RequestLogger tags every request with an ID and logs its outcome.
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerReqID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(headerReqID, id)

		reqLog := log.With("request_id", id)
		c.Set(ctxLogger, reqLog)

		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		reqLog.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

func loggerFrom(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(ctxLogger); ok {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return slog.Default()
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			abortError(c, entities.Errorf(entities.ErrUnauthenticated, "Not authenticated"))
			return
		}
		authenticate(c, auth, token)
	}
}

// OptionalAuth lets anonymous requests through but rejects a bad token.
func OptionalAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok && c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		authenticate(c, auth, token)
	}
}

func authenticate(c *gin.Context, auth Authenticator, token string) {
	user, err := auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		abortError(c, err)
		return
	}
	c.Set(ctxUser, user)
	c.Next()
}

func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if len(h) < len(bearerPrefix) || !strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(bearerPrefix):])
	return token, token != ""
}

// CurrentUser returns the authenticated caller, or nil.
func CurrentUser(c *gin.Context) *entities.User {
	if v, ok := c.Get(ctxUser); ok {
		if u, ok := v.(*entities.User); ok {
			return u
		}
	}
	return nil
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, entities.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, entities.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, entities.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entities.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes err as {"error": message}. Unclassified errors are
// logged and hidden behind a generic message.
func respondError(c *gin.Context, err error) {
	status := statusOf(err)
	writeError(c, status, err)
	c.JSON(status, gin.H{"error": publicMessage(status, err)})
}

func abortError(c *gin.Context, err error) {
	status := statusOf(err)
	writeError(c, status, err)
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": publicMessage(status, err)})
}

func writeError(c *gin.Context, status int, err error) {
	if status == http.StatusInternalServerError {
		loggerFrom(c).Error("request failed", "error", err)
	}
	_ = c.Error(err)
}

func publicMessage(status int, err error) string {
	if status == http.StatusInternalServerError {
		return "Internal server error"
	}
	return err.Error()
}
