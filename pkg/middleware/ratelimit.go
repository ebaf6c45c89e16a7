package middleware

import (
	"time"

	"github.com/gorilla/mux"
	"github.com/ulule/limiter/v3"
	mhttp "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// IPRateLimitPeriod limits each client IP to the given number of requests
// per period. Used on the login endpoint to slow credential stuffing.
func IPRateLimitPeriod(requests int64, period time.Duration) mux.MiddlewareFunc {
	instance := limiter.New(memory.NewStore(), limiter.Rate{
		Period: period,
		Limit:  requests,
	})
	m := mhttp.NewMiddleware(instance)
	return m.Handler
}
