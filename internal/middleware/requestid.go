package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader propagates the request identifier in and out of the service.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key holding the request ID string.
	RequestIDKey = "request_id"

	// maxRequestIDLength caps upstream-supplied identifiers so a hostile
	// client cannot stuff kilobytes into every log line.
	maxRequestIDLength = 128
)

// RequestIDMiddleware tags every request with an identifier. An inbound
// X-Request-ID (from a load balancer or calling service) is reused so traces
// stay joined across hops; otherwise a fresh UUID is minted. The ID is stored
// under RequestIDKey for the logger and echoed in the response header so
// clients can quote it when reporting problems.
//
// Register it right after gin.Recovery so everything downstream logs with
// the same id.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the request ID stored by RequestIDMiddleware, or ""
// when the middleware has not run for this context.
func GetRequestID(c *gin.Context) string {
	if id, ok := c.Get(RequestIDKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
