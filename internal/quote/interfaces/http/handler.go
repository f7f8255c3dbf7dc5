// Package http 报价模块 HTTP 接口
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/zksession/internal/quote/application"
	"github.com/wyfcoding/zksession/internal/quote/domain"
	sessiondomain "github.com/wyfcoding/zksession/internal/session/domain"
	"github.com/wyfcoding/zksession/pkg/middleware"
	"github.com/wyfcoding/zksession/pkg/response"
)

type Handler struct {
	service *application.QuoteApplicationService
}

func NewHandler(service *application.QuoteApplicationService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/quote")
	{
		g.GET("", h.GetQuote)
		g.POST("/swap", h.ExecuteSwap)
		g.GET("/tokens", h.GetTokens)
		g.GET("/liquidity", h.GetLiquidity)
		g.GET("/ticker", h.GetTicker)
	}
}

func swapRequestFromQuery(c *gin.Context) *domain.SwapRequest {
	return &domain.SwapRequest{
		ChainIndex:        c.Query("chain_index"),
		FromTokenAddress:  c.Query("from_token"),
		ToTokenAddress:    c.Query("to_token"),
		Amount:            c.Query("amount"),
		Slippage:          c.Query("slippage"),
		UserWalletAddress: middleware.CallerAddress(c),
		GasLevel:          c.Query("gas_level"),
	}
}

func (h *Handler) GetQuote(c *gin.Context) {
	result, err := h.service.GetQuote(c.Request.Context(), swapRequestFromQuery(c))
	if err != nil {
		writeQuoteError(c, err)
		return
	}
	response.Success(c, result)
}

type ExecuteSwapReq struct {
	ChainIndex       string `json:"chain_index"`
	FromTokenAddress string `json:"from_token" binding:"required"`
	ToTokenAddress   string `json:"to_token" binding:"required"`
	Amount           string `json:"amount" binding:"required"`
	Slippage         string `json:"slippage"`
	GasLevel         string `json:"gas_level"`
}

func (h *Handler) ExecuteSwap(c *gin.Context) {
	caller := middleware.CallerAddress(c)
	if caller == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "missing wallet address", "set the "+middleware.WalletAddressHeader+" header")
		return
	}

	var req ExecuteSwapReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	result, err := h.service.ExecuteSwap(c.Request.Context(), caller, &domain.SwapRequest{
		ChainIndex:       req.ChainIndex,
		FromTokenAddress: req.FromTokenAddress,
		ToTokenAddress:   req.ToTokenAddress,
		Amount:           req.Amount,
		Slippage:         req.Slippage,
		GasLevel:         req.GasLevel,
	})
	if err != nil {
		writeQuoteError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *Handler) GetTokens(c *gin.Context) {
	tokens, err := h.service.GetSupportedTokens(c.Request.Context())
	if err != nil {
		writeQuoteError(c, err)
		return
	}
	response.Success(c, tokens)
}

func (h *Handler) GetLiquidity(c *gin.Context) {
	sources, err := h.service.GetLiquiditySources(c.Request.Context())
	if err != nil {
		writeQuoteError(c, err)
		return
	}
	response.Success(c, sources)
}

func (h *Handler) GetTicker(c *gin.Context) {
	ticker, err := h.service.GetMarketTicker(c.Request.Context(), c.Query("inst_id"))
	if err != nil {
		writeQuoteError(c, err)
		return
	}
	response.Success(c, ticker)
}

// writeQuoteError 上游错误映射到 502，账本错误沿用会话模块的映射
func writeQuoteError(c *gin.Context, err error) {
	var apiErr *domain.APIError
	switch {
	case errors.Is(err, domain.ErrInvalidSwapRequest):
		response.ErrorWithStatus(c, http.StatusBadRequest, "validation failed", err.Error())
	case errors.As(err, &apiErr), errors.Is(err, domain.ErrUpstream):
		response.ErrorWithStatus(c, http.StatusBadGateway, "aggregator unavailable", err.Error())
	case errors.Is(err, application.ErrSessionRequired),
		errors.Is(err, sessiondomain.ErrSessionInvalid),
		errors.Is(err, sessiondomain.ErrBudgetExceeded):
		response.ErrorWithStatus(c, http.StatusConflict, "session conflict", err.Error())
	case errors.Is(err, sessiondomain.ErrUnauthorized):
		response.ErrorWithStatus(c, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, sessiondomain.ErrInvalidAmount), errors.Is(err, sessiondomain.ErrInvalidAddress):
		response.ErrorWithStatus(c, http.StatusBadRequest, "validation failed", err.Error())
	default:
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error", err.Error())
	}
}
