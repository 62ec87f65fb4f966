// Package respond renders the uniform JSON envelope used by every handler.
package respond

import (
	"github.com/gin-gonic/gin"

	"github.com/crewboard/crewboard-backend/internal/apperr"
	"github.com/crewboard/crewboard-backend/internal/logging"
)

// OK writes {"ok": true, ...body}.
func OK(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["ok"] = true
	c.JSON(status, body)
}

// Error maps err onto a status code and writes {"ok": false, "error": msg}.
// Internal failures are logged with their cause; the caller only sees a
// generic message.
func Error(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		logging.FromContext(c.Request.Context()).
			WithError(err).
			WithField("path", c.FullPath()).
			Error("request failed")
	}
	c.AbortWithStatusJSON(apperr.HTTPStatus(kind), gin.H{
		"ok":    false,
		"error": apperr.PublicMessage(err),
	})
}

// BadRequest is used for malformed bodies that never reach a service.
func BadRequest(c *gin.Context, msg string) {
	Error(c, apperr.Validation("%s", msg))
}
