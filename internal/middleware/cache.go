package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey = "response_meta"
	requestStartKey = "request_start"
)

// WithResponseMeta records the request start time so handlers can attach
// timing and cache metadata to their response envelope.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(requestStartKey, time.Now())
		c.Next()
	}
}

// SetCacheHit marks whether the current response was served from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	meta := ensureMeta(c)
	meta["cache_hit"] = hit
}

// ExtractMeta returns the response metadata with elapsed time filled in.
// Nil when WithResponseMeta is not installed and nothing was set.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	meta, hasMeta := metaFromContext(c)
	if start, exists := c.Get(requestStartKey); exists {
		if startedAt, ok := start.(time.Time); ok {
			if meta == nil {
				meta = ensureMeta(c)
			}
			meta["elapsed_ms"] = time.Since(startedAt).Milliseconds()
			return meta
		}
	}
	if !hasMeta {
		return nil
	}
	return meta
}

func metaFromContext(c *gin.Context) (map[string]interface{}, bool) {
	if v, exists := c.Get(responseMetaKey); exists {
		if typed, ok := v.(map[string]interface{}); ok {
			return typed, true
		}
	}
	return nil, false
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return map[string]interface{}{}
	}
	if meta, ok := metaFromContext(c); ok {
		return meta
	}
	meta := make(map[string]interface{})
	c.Set(responseMetaKey, meta)
	return meta
}
