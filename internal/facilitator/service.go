package facilitator

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/porus-labs/porus/internal/x402"
)

// ErrNoSigners is returned when no ledger family has key material configured.
var ErrNoSigners = errors.New("no network family has key material configured")

// supportedNetwork is the canonical network advertised per family.
var supportedNetwork = map[x402.Family]string{
	x402.FamilyEVM: "polygon-amoy",
	x402.FamilySVM: "solana-devnet",
}

// Service resolves a network-family signer per request and serves the
// verify/settle/supported operations.
type Service struct {
	signers map[x402.Family]Signer
	log     *slog.Logger
	now     func() time.Time
}

// New builds a Service over the configured signers. At least one family must
// hold key material.
func New(signers map[x402.Family]Signer, log *slog.Logger) (*Service, error) {
	if len(signers) == 0 {
		return nil, ErrNoSigners
	}
	return &Service{signers: signers, log: log, now: time.Now}, nil
}

// Router builds the facilitator's HTTP surface.
func (s *Service) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/verify", s.describeVerify)
	r.POST("/verify", s.handleVerify)
	r.GET("/settle", s.describeSettle)
	r.POST("/settle", s.handleSettle)
	r.GET("/supported", s.handleSupported)
	return r
}

func (s *Service) describeVerify(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"endpoint":    "/verify",
		"description": "POST to verify x402 payments",
		"body": gin.H{
			"paymentPayload":      "PaymentPayload",
			"paymentRequirements": "PaymentRequirements",
		},
	})
}

func (s *Service) describeSettle(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"endpoint":    "/settle",
		"description": "POST to settle x402 payments",
		"body": gin.H{
			"paymentPayload":      "PaymentPayload",
			"paymentRequirements": "PaymentRequirements",
		},
	})
}

// handleVerify validates a payment assertion without executing a transfer.
// Repeating the call is safe.
func (s *Service) handleVerify(c *gin.Context) {
	req, ok := s.bindRequest(c)
	if !ok {
		return
	}
	if _, ok := s.resolveSigner(c, req.PaymentRequirements.Network); !ok {
		return
	}
	c.JSON(http.StatusOK, verifyExact(req.PaymentPayload, req.PaymentRequirements, s.now()))
}

func (s *Service) handleSettle(c *gin.Context) {
	req, ok := s.bindRequest(c)
	if !ok {
		return
	}
	signer, ok := s.resolveSigner(c, req.PaymentRequirements.Network)
	if !ok {
		return
	}

	verdict := verifyExact(req.PaymentPayload, req.PaymentRequirements, s.now())
	if !verdict.IsValid {
		s.log.Info("settlement rejected",
			"network", req.PaymentRequirements.Network,
			"reason", verdict.InvalidReason)
		c.JSON(http.StatusOK, x402.SettleResponse{
			Success: false,
			Network: req.PaymentRequirements.Network,
			Error:   verdict.InvalidReason,
		})
		return
	}

	txHash, err := signer.SettlementID(req.PaymentPayload)
	if err != nil {
		s.log.Error("settlement signing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	s.log.Info("settlement executed",
		"network", req.PaymentRequirements.Network,
		"payer", verdict.Payer,
		"transaction", txHash)
	c.JSON(http.StatusOK, x402.SettleResponse{
		Success:         true,
		TransactionHash: txHash,
		ID:              uuid.NewString(),
		Network:         req.PaymentRequirements.Network,
		Payer:           verdict.Payer,
	})
}

// handleSupported reports one kind per family currently holding key material.
func (s *Service) handleSupported(c *gin.Context) {
	kinds := make([]x402.SupportedKind, 0, len(s.signers))
	for _, family := range []x402.Family{x402.FamilyEVM, x402.FamilySVM} {
		signer, ok := s.signers[family]
		if !ok {
			continue
		}
		kind := x402.SupportedKind{
			X402Version: x402.Version,
			Scheme:      x402.SchemeExact,
			Network:     supportedNetwork[family],
		}
		if family == x402.FamilySVM {
			kind.Extra = map[string]any{"feePayer": signer.Address()}
		}
		kinds = append(kinds, kind)
	}
	c.JSON(http.StatusOK, x402.SupportedResponse{Kinds: kinds})
}

func (s *Service) bindRequest(c *gin.Context) (x402.VerifyRequest, bool) {
	var req x402.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return x402.VerifyRequest{}, false
	}
	return req, true
}

// resolveSigner maps the requested network onto a configured family signer.
// Unknown networks and families without key material fail fast.
func (s *Service) resolveSigner(c *gin.Context, network string) (Signer, bool) {
	family, err := x402.ResolveFamily(network)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid network"})
		return nil, false
	}
	signer, ok := s.signers[family]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No signer configured for network " + network})
		return nil, false
	}
	return signer, true
}
