package middleware

import (
	"errors"

	"github.com/Lekbanken/economy/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last error pushed onto the gin context as a JSON body
// with the status code derived from its CoreStatus.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil || c.Writer.Written() {
			return
		}

		var be errutil.BaseError
		if !errors.As(err.Err, &be) {
			be = errutil.BaseError{Code: errutil.StatusInternal, Message: err.Error()}
		}

		c.JSON(be.Code.HTTPStatus(), be.JSON())
	}
}
