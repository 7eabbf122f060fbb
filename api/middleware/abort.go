package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/use-agent/pdfpool/models"
)

// abort stops the chain with the same failure body the render handler
// uses, so clients parse one error shape for every rejection.
func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.RenderResponse{
		Success: false,
		Error:   models.NewRenderError(code, message, nil).ToDetail(),
	})
}
