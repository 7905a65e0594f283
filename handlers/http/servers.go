package httpHandler

import (
	"errors"
	"net/http"

	"telemetry-server/entities"
	"telemetry-server/usecases"

	"github.com/gin-gonic/gin"
)

type ServerHandler struct {
	useCase *usecases.ServerUseCase
}

func NewServerHandler(useCase *usecases.ServerUseCase) *ServerHandler {
	return &ServerHandler{useCase: useCase}
}

type CreateServerRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateServer handles POST /servers/
func (h *ServerHandler) CreateServer(c *gin.Context) {
	var req CreateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	server, err := h.useCase.RegisterServer(c.Request.Context(), CurrentUser(c), req.Name)
	if errors.Is(err, entities.ErrConflict) {
		// duplicate names are a client error on this route, not 409
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, server)
}

// ListServers handles GET /servers/
func (h *ServerHandler) ListServers(c *gin.Context) {
	servers, err := h.useCase.ListServers(c.Request.Context(), CurrentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, servers)
}
