// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// DefaultRateLimit allows a steady 50 requests/second with a burst
// matching the concurrency the service is provisioned for.
const (
	DefaultRateLimit = 50
	DefaultRateBurst = 100
)

// RateLimit rejects requests beyond the configured rate with 429.
//
// This is a process-wide limiter, not per-client: the service fronts a
// single local model, so the resource being protected is shared anyway.
func RateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateBurst)
	}
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, retry later",
			})
			return
		}
		c.Next()
	}
}
