// Package gateway is the per-request access decision engine. It resolves a
// protected resource from the request's declared origin, admits holders of a
// valid credential, settles payment assertions through the facilitator, and
// denies everything else with structured payment requirements.
package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/porus-labs/porus/internal/credential"
	"github.com/porus-labs/porus/internal/registry"
	"github.com/porus-labs/porus/internal/x402"
)

// Fixed payment policy advertised in 402 responses.
const (
	maxAmountRequired = "100"
	maxTimeoutSeconds = 3600
)

// Settler is the slice of the settlement client the gateway needs.
type Settler interface {
	Settle(ctx context.Context, payload x402.PaymentPayload, reqs x402.PaymentRequirements) (*x402.SettleResponse, error)
}

// Config for the gateway server.
type Config struct {
	// SecureCookies marks issued cookies Secure; set in production.
	SecureCookies bool
}

// Server wires the registry, the credential service, and the settlement
// client into the HTTP surface.
type Server struct {
	cfg         Config
	registry    registry.Registry
	credentials *credential.Service
	settler     Settler
	log         *slog.Logger
}

// New builds a Server.
func New(cfg Config, reg registry.Registry, credentials *credential.Service, settler Settler, log *slog.Logger) *Server {
	return &Server{
		cfg:         cfg,
		registry:    reg,
		credentials: credentials,
		settler:     settler,
		log:         log,
	}
}

// Router builds the gateway's HTTP surface. The credential check and the
// authorization state machine run on every route, exactly as the management
// and content routes expect.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLog)
	r.Use(corsAllowAll)
	r.Use(s.checkAuthToken)
	r.Use(s.authOrPayment)

	r.GET("/health", s.handleHealth)

	r.GET("/resources", s.handleListResources)
	r.POST("/resources", s.handleCreateResource)
	r.GET("/resources/*origin", s.handleGetResource)
	r.PUT("/resources/*origin", s.handleUpdateResource)
	r.DELETE("/resources/*origin", s.handleDeleteResource)

	r.GET("/premium", s.handlePremium)
	r.POST("/premium", s.handlePremium)
	r.GET("/premium/credential-only", s.requireAuth, s.handlePremiumCredentialOnly)
	r.GET("/auth/status", s.handleAuthStatus)
	r.POST("/logout", s.handleLogout)

	return r
}

// requestLog tags each request with an id and logs its outcome.
func (s *Server) requestLog(c *gin.Context) {
	id := uuid.NewString()
	c.Set(ctxRequestID, id)
	c.Next()
	s.log.Info("request",
		"id", id,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status())
}

// requestID recovers the id stamped by requestLog, for correlating handler
// logs with the request line.
func requestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

func corsAllowAll(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}
