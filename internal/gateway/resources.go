package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/porus-labs/porus/internal/registry"
)

type createResourceRequest struct {
	Website       string `json:"website"`
	WalletAddress string `json:"walletAddress"`
	Price         string `json:"price"`
	Network       string `json:"network"`
	Description   string `json:"description"`
}

type updateResourceRequest struct {
	WalletAddress *string `json:"walletAddress"`
	Price         *string `json:"price"`
	Network       *string `json:"network"`
	Description   *string `json:"description"`
	Enabled       *bool   `json:"enabled"`
}

func (s *Server) handleListResources(c *gin.Context) {
	resources, err := s.registry.List(c.Request.Context())
	if err != nil {
		s.log.Error("list resources failed", "id", requestID(c), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    resources,
		"count":   len(resources),
	})
}

func (s *Server) handleCreateResource(c *gin.Context) {
	var req createResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
		return
	}
	if req.Website == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Missing required fields: website, walletAddress, price, network, description",
		})
		return
	}

	created, err := s.registry.Create(c.Request.Context(), req.Website, registry.Resource{
		WalletAddress: req.WalletAddress,
		Price:         req.Price,
		Network:       req.Network,
		Description:   req.Description,
	})
	if err != nil {
		s.writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Protected resource added successfully",
		"data":    created,
	})
}

func (s *Server) handleGetResource(c *gin.Context) {
	res, err := s.registry.Get(c.Request.Context(), originParam(c))
	if err != nil {
		s.writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": res})
}

func (s *Server) handleUpdateResource(c *gin.Context) {
	var req updateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
		return
	}
	updated, err := s.registry.Update(c.Request.Context(), originParam(c), registry.Update{
		WalletAddress: req.WalletAddress,
		Price:         req.Price,
		Network:       req.Network,
		Description:   req.Description,
		Enabled:       req.Enabled,
	})
	if err != nil {
		s.writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Protected resource updated successfully",
		"data":    updated,
	})
}

func (s *Server) handleDeleteResource(c *gin.Context) {
	if err := s.registry.Delete(c.Request.Context(), originParam(c)); err != nil {
		s.writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Protected resource deleted successfully",
	})
}

// originParam recovers the origin from a wildcard path segment; gin keeps the
// leading slash.
func originParam(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("origin"), "/")
}

func (s *Server) writeRegistryError(c *gin.Context, err error) {
	var verr *registry.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": verr.Reason})
	case errors.Is(err, registry.ErrExists):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "Protected resource already exists"})
	case errors.Is(err, registry.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Protected resource not found"})
	default:
		s.log.Error("registry operation failed", "id", requestID(c), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
	}
}
