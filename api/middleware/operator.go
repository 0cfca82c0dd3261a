package middleware

import (
	"github.com/gin-gonic/gin"
)

// operatorIdHeaders are checked in order; the first non-empty value wins.
var operatorIdHeaders = []string{
	"X-OPERATOR-ID",
	"X-USER-ID",
}

// OperatorIdMiddleware extracts the console operator identity from request
// headers and stores it in the gin context for the custom context to pick up.
func OperatorIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		operatorId := ""
		for _, header := range operatorIdHeaders {
			if value := c.GetHeader(header); value != "" {
				operatorId = value
				break
			}
		}

		c.Set("UserId", operatorId)
		c.Next()
	}
}
