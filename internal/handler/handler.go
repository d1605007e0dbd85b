package handler

import (
	"log"
	"net/http"

	"campuspoints/pkg/apperr"
	"campuspoints/pkg/response"

	"github.com/gin-gonic/gin"
)

// respondError maps a service error to its HTTP status. Unexpected errors are
// logged server-side and reported generically.
func respondError(c *gin.Context, err error) {
	code, msg := apperr.Status(err)
	if code == http.StatusInternalServerError {
		log.Printf("internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(code, response.Error(msg))
}
