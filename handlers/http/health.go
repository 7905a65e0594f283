package httpHandler

import (
	"net/http"

	"telemetry-server/usecases"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	useCase *usecases.HealthUseCase
}

func NewHealthHandler(useCase *usecases.HealthUseCase) *HealthHandler {
	return &HealthHandler{useCase: useCase}
}

// GetAllHealth handles GET /health/all
func (h *HealthHandler) GetAllHealth(c *gin.Context) {
	reports, err := h.useCase.EvaluateAll(c.Request.Context(), CurrentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reports)
}

// GetServerHealth handles GET /health/:server_id
func (h *HealthHandler) GetServerHealth(c *gin.Context) {
	report, err := h.useCase.EvaluateServer(c.Request.Context(), CurrentUser(c), c.Param("server_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
