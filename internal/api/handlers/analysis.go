package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sigilum/chainrisk/internal/inference"
	"github.com/sigilum/chainrisk/internal/models"
	"github.com/sigilum/chainrisk/internal/services"
)

type AnalysisHandler struct {
	svc *services.AnalysisService
}

func NewAnalysisHandler(svc *services.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{svc: svc}
}

type AnalyzeRequest struct {
	Address string `json:"address" binding:"required"`
}

// Analyze scores one address. Data-quality problems come back as a 200 with
// an INCONCLUSIVE band; only malformed requests and operational failures
// produce error statuses.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address is required"})
		return
	}

	result, err := h.svc.AnalyzeAddress(c.Request.Context(), strings.TrimSpace(req.Address))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnrecognizedAddress):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, inference.ErrModelNotLoaded):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

type ModelChunkRequest struct {
	ChunkID     int             `json:"chunk_id"`
	TotalChunks int             `json:"total_chunks" binding:"required"`
	Data        string          `json:"data" binding:"required"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

type ModelChunkResponse struct {
	Chain string `json:"chain"`
	Phase string `json:"phase"`
}

// chainParam maps the URL chain segment to a chain type.
func chainParam(s string) (models.ChainType, bool) {
	switch strings.ToLower(s) {
	case "bitcoin", "btc":
		return models.ChainBitcoin, true
	case "ethereum", "eth":
		return models.ChainEthereum, true
	case "solana", "sol":
		return models.ChainSolana, true
	case "icp", "ledger":
		return models.ChainLedger, true
	default:
		return models.ChainUnknown, false
	}
}

// UploadModelChunk accepts one chunk of a chain's model artifact. When the
// final chunk lands the model is loaded and persisted before the response.
func (h *AnalysisHandler) UploadModelChunk(c *gin.Context) {
	chainType, ok := chainParam(c.Param("chain"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown chain: " + c.Param("chain")})
		return
	}

	var req ModelChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data := services.DecodeChunkData(req.Data)
	phase, err := h.svc.HandleModelChunk(c.Request.Context(), chainType, req.ChunkID, req.TotalChunks, data, req.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrChunkOutOfRange),
			errors.Is(err, services.ErrChunkTotalMismatch),
			errors.Is(err, services.ErrMetadataMissing):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, ModelChunkResponse{Chain: string(chainType), Phase: phase})
}

// ProviderHealth reports the price oracle's per-provider failure counters
// and, when a durable cache tier runs, its hit/miss counters.
func (h *AnalysisHandler) ProviderHealth(c *gin.Context) {
	body := gin.H{"providers": h.svc.ProviderHealth()}
	if stats, ok := h.svc.QuoteCacheStats(); ok {
		body["price_cache"] = stats
	}
	c.JSON(http.StatusOK, body)
}
