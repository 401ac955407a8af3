package server

import (
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusOf maps a failed call to an HTTP status. Missing games and tickets
// are reported as 404 rather than a generic precondition failure.
func statusOf(err error) int {
	switch gameroot.KindOf(err) {
	case gameroot.KindAuthorization:
		return http.StatusForbidden
	case gameroot.KindPrecondition:
		if strings.HasSuffix(gameroot.CodeOf(err), "_not_found") {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case gameroot.KindInvariant:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *httpHandler) writeCallError(c *gin.Context, err error) {
	status := statusOf(err)
	code := gameroot.CodeOf(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("lottery call failed",
			zap.String("route", c.FullPath()),
			zap.String("code", code),
			zap.Error(err))
		c.AbortWithStatusJSON(status, errorPayload{Error: "internal_error", Code: code})
		return
	}
	c.AbortWithStatusJSON(status, errorPayload{Error: err.Error(), Code: code})
}

func writeBadRequest(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorPayload{Error: message, Code: "http." + code})
}
