package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"bioage/internal/audit"
	"bioage/internal/service"
)

const (
	requestIDKey      = "request_id"
	requestIDHeader   = "X-Request-ID"
	rateLimitedDetail = "rate limit exceeded"
)

// requestIDMiddleware reutiliza X-Request-ID o genera uno nuevo.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// RequestID obtiene el id de request desde el contexto.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// auditRequestsMiddleware deja una línea en el audit log por cada request entrante.
func auditRequestsMiddleware(logger *zap.Logger, sink service.AuditSink) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sink != nil {
			err := sink.Append(c.Request.Context(), audit.Entry{
				RequestID: RequestID(c),
				Stage:     audit.StageIncoming,
				Message:   "Incoming Request: " + c.Request.Method + " " + fullURL(c.Request),
			})
			if err != nil {
				logger.Warn("audit append failed", zap.Error(err))
			}
		}
		c.Next()
	}
}

func fullURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// corsMiddleware permite los orígenes configurados con cualquier método y header.
func corsMiddleware(allowOrigins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowOrigins))
	for _, o := range allowOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		if _, ok := allowed[origin]; !ok && !allowAll {
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")

		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			if reqHeaders := c.GetHeader("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			}
			h.Set("Access-Control-Max-Age", "600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// rateLimitMiddleware responde 429 cuando la IP supera el límite configurado.
// onReject, si no es nil, se encarga de la respuesta.
func rateLimitMiddleware(logger *zap.Logger, limiter service.RateLimiter, onReject func(c *gin.Context, status int, detail string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limiter.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		logger.Warn("rate limited", zap.String("client_ip", c.ClientIP()), zap.String("path", c.Request.URL.Path))
		if onReject != nil {
			onReject(c, http.StatusTooManyRequests, rateLimitedDetail)
			return
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"detail": rateLimitedDetail})
	}
}
