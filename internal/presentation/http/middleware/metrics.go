package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dnastack/ddap-admin/internal/application/realm"
)

// RequestRecorder receives one observation per served request.
type RequestRecorder interface {
	RecordRequest(realm, method, route string, status int, d time.Duration)
}

// Metrics records every request under its route template, so path
// parameters do not explode label cardinality.
func Metrics(recorder RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		name := c.Param("realm")
		if !realm.ValidName(name) {
			name = ""
		}
		recorder.RecordRequest(name, c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
