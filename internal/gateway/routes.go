package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func premiumData() gin.H {
	return gin.H{
		"insights":     "Advanced analytics data",
		"metrics":      []float64{87.3, 92.1, 78.5, 95.2},
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"authenticated": claimsFrom(c) != nil,
	})
}

func (s *Server) handlePremium(c *gin.Context) {
	accessMethod := "JWT Authentication"
	if c.GetBool(ctxSettled) {
		accessMethod = "Direct Payment"
	}
	var user any
	if claims := claimsFrom(c); claims != nil {
		user = claims
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       "Premium content accessed!",
		"access_method": accessMethod,
		"premium_data":  premiumData(),
		"user":          user,
	})
}

func (s *Server) handlePremiumCredentialOnly(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":      "Premium content accessed via credential only!",
		"premium_data": premiumData(),
		"user":         claimsFrom(c),
	})
}

func (s *Server) handleAuthStatus(c *gin.Context) {
	var user any
	if claims := claimsFrom(c); claims != nil {
		user = claims
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": user != nil,
		"user":          user,
	})
}

// handleLogout instructs the client to discard its credential. The credential
// itself stays valid until expiry; there is no server-side revocation list.
func (s *Server) handleLogout(c *gin.Context) {
	s.clearCredentialCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}
