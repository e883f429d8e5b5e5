package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/starchain-protocol/starchain/internal/chain"
	"github.com/starchain-protocol/starchain/internal/ownership"
	"go.uber.org/zap"
)

// ChainHandler exposes the star ledger over HTTP: chain status and
// validation, block lookups, ownership challenges and proofs, and per-wallet
// star listings.
type ChainHandler struct {
	chain     chain.Chain
	ownership *ownership.Service
	logger    *zap.Logger
}

// NewChainHandler creates a ChainHandler.
func NewChainHandler(ch chain.Chain, own *ownership.Service, logger *zap.Logger) *ChainHandler {
	return &ChainHandler{chain: ch, ownership: own, logger: logger}
}

// Register mounts the chain routes on the given router group.
func (h *ChainHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/chain", h.Status)
	rg.GET("/chain/validate", h.Validate)
	rg.GET("/blocks/height/:height", h.BlockByHeight)
	rg.GET("/blocks/hash/:hash", h.BlockByHash)
	rg.POST("/ownership/challenge", h.RequestChallenge)
	rg.POST("/ownership/proof", h.SubmitProof)
	rg.GET("/stars/:address", h.StarsByWallet)
}

// Status handles GET /chain — returns the current height and tip hash.
func (h *ChainHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	height, err := h.chain.Height(ctx)
	if err != nil {
		h.logger.Error("chain Height", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query chain"})
		return
	}

	resp := gin.H{"height": height}
	if height >= 0 {
		// A not-found tip is tolerated rather than a failure: the height was
		// read in a separate call, so a lookup miss is not worth a 500.
		switch tip, err := h.chain.ByHeight(ctx, height); {
		case err == nil:
			resp["tip_hash"] = tip.Hash
		case !errors.Is(err, chain.ErrBlockNotFound):
			h.logger.Error("chain tip lookup", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query chain tip"})
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Validate handles GET /chain/validate — runs the full integrity scan and
// reports every violation found.
func (h *ChainHandler) Validate(c *gin.Context) {
	violations, err := h.chain.Validate(c.Request.Context())
	if err != nil {
		h.logger.Error("chain Validate", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate chain"})
		return
	}
	RecordValidation(len(violations) == 0)

	c.JSON(http.StatusOK, gin.H{
		"valid":      len(violations) == 0,
		"violations": violations,
	})
}

// BlockByHeight handles GET /blocks/height/:height.
func (h *ChainHandler) BlockByHeight(c *gin.Context) {
	height, err := strconv.Atoi(c.Param("height"))
	if err != nil || height < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "height must be a non-negative integer"})
		return
	}

	b, err := h.chain.ByHeight(c.Request.Context(), height)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// BlockByHash handles GET /blocks/hash/:hash.
func (h *ChainHandler) BlockByHash(c *gin.Context) {
	b, err := h.chain.ByHash(c.Request.Context(), c.Param("hash"))
	if err != nil {
		h.respondLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *ChainHandler) respondLookupError(c *gin.Context, err error) {
	if errors.Is(err, chain.ErrBlockNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "block not found"})
		return
	}
	h.logger.Error("block lookup", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query block"})
}

type challengeRequest struct {
	Address string `json:"address"`
}

// RequestChallenge handles POST /ownership/challenge — issues the message a
// wallet must sign to claim a star.
func (h *ChainHandler) RequestChallenge(c *gin.Context) {
	var req challengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	message, err := h.ownership.RequestChallenge(req.Address)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address": req.Address,
		"message": message,
	})
}

type proofRequest struct {
	Address   string          `json:"address"`
	Message   string          `json:"message"`
	Signature string          `json:"signature"`
	Star      json.RawMessage `json:"star"`
}

// SubmitProof handles POST /ownership/proof — verifies the signed challenge
// and appends the owner-tagged star block.
func (h *ChainHandler) SubmitProof(c *gin.Context) {
	var req proofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	b, err := h.ownership.SubmitProof(c.Request.Context(), req.Address, req.Message, req.Signature, req.Star)
	if err != nil {
		RecordProof(false)
		switch {
		case errors.Is(err, ownership.ErrMissingAddress),
			errors.Is(err, ownership.ErrMalformedMessage):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, ownership.ErrProofExpired),
			errors.Is(err, ownership.ErrInvalidSignature):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		default:
			h.logger.Error("submit proof", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register star"})
		}
		return
	}

	RecordProof(true)
	RecordBlockAppend()
	c.JSON(http.StatusCreated, b)
}

// StarsByWallet handles GET /stars/:address — lists every star owned by the
// wallet. Zero matches yield an empty list, not an error.
func (h *ChainHandler) StarsByWallet(c *gin.Context) {
	address := c.Param("address")

	stars, err := h.chain.StarsByOwner(c.Request.Context(), address)
	if err != nil {
		h.logger.Error("stars by wallet", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query stars"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"owner": address,
		"stars": stars,
	})
}
