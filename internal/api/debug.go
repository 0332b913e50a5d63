package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// how much of the diagnostic log the debug endpoint exposes
const diagTailBytes = 64 * 1024

// RenderErrors handles GET /debug/render-errors: the tail of the best-effort
// diagnostic log as plain text, for inspecting request arrivals and panics
// without shell access to the host.
func (h *Handler) RenderErrors(c *gin.Context) {
	content, err := h.diag.Tail(diagTailBytes)
	if err != nil {
		c.String(http.StatusNotFound, "no diagnostic log available")
		return
	}
	c.String(http.StatusOK, content)
}
