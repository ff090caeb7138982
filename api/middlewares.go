package api

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// statsdMiddleware reports request count, latency and status per route.
// The route pattern is used as the tag so order ids do not explode cardinality.
func (s *Server) statsdMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		tags := []string{"path:" + c.Path(), "method:" + c.Request().Method}
		_ = s.sdClient.Incr("http.requests", tags, 1)
		_ = s.sdClient.Timing("http.response_time", time.Since(start), tags, 1)
		_ = s.sdClient.Incr("http.status."+strconv.Itoa(c.Response().Status), tags, 1)
		if err != nil {
			_ = s.sdClient.Incr("http.errors", tags, 1)
		}
		return err
	}
}
