// Package http 会话账本 HTTP 接口
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/zksession/internal/session/application"
	"github.com/wyfcoding/zksession/internal/session/domain"
	"github.com/wyfcoding/zksession/pkg/middleware"
	"github.com/wyfcoding/zksession/pkg/response"
)

type Handler struct {
	service *application.SessionApplicationService
}

func NewHandler(service *application.SessionApplicationService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/session")
	{
		g.POST("", h.CreateSession)
		g.POST("/trade", h.ExecuteTrade)
		g.POST("/traders", h.AuthorizeTrader)
		g.DELETE("/traders/:address", h.RevokeTrader)
		g.POST("/:address/expire", h.EmergencyExpire)
		g.GET("/:address", h.GetSession)
		g.GET("/:address/valid", h.IsValid)
		g.GET("/:address/remaining", h.RemainingLimit)
	}
}

type CreateSessionReq struct {
	DurationSeconds int64  `json:"duration_seconds" binding:"required"`
	SpendLimit      string `json:"spend_limit" binding:"required"`
}

func (h *Handler) CreateSession(c *gin.Context) {
	caller := middleware.CallerAddress(c)
	if caller == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "missing wallet address", "set the "+middleware.WalletAddressHeader+" header")
		return
	}

	var req CreateSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	limit, err := decimal.NewFromString(req.SpendLimit)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid spend limit", err.Error())
		return
	}

	dto, err := h.service.CreateSession(c.Request.Context(), &application.CreateSessionCommand{
		Caller:     caller,
		Duration:   req.DurationSeconds,
		SpendLimit: limit,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	response.Success(c, dto)
}

type ExecuteTradeReq struct {
	User   string `json:"user"`
	Amount string `json:"amount" binding:"required"`
}

func (h *Handler) ExecuteTrade(c *gin.Context) {
	caller := middleware.CallerAddress(c)
	if caller == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "missing wallet address", "set the "+middleware.WalletAddressHeader+" header")
		return
	}

	var req ExecuteTradeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}
	// user 缺省为调用方自己的会话
	user := req.User
	if user == "" {
		user = caller
	}

	result, err := h.service.ExecuteTrade(c.Request.Context(), &application.ExecuteTradeCommand{
		Caller: caller,
		User:   user,
		Amount: amount,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	response.Success(c, result)
}

type AuthorizeTraderReq struct {
	Trader string `json:"trader" binding:"required"`
}

func (h *Handler) AuthorizeTrader(c *gin.Context) {
	var req AuthorizeTraderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := h.service.AuthorizeTrader(c.Request.Context(), &application.AuthorizeTraderCommand{Trader: req.Trader}); err != nil {
		writeDomainError(c, err)
		return
	}
	response.Success(c, gin.H{"trader": domain.NormalizeAddress(req.Trader)})
}

func (h *Handler) RevokeTrader(c *gin.Context) {
	trader := c.Param("address")
	if err := h.service.RevokeTrader(c.Request.Context(), &application.RevokeTraderCommand{Trader: trader}); err != nil {
		writeDomainError(c, err)
		return
	}
	response.Success(c, gin.H{"trader": domain.NormalizeAddress(trader)})
}

func (h *Handler) EmergencyExpire(c *gin.Context) {
	caller := middleware.CallerAddress(c)
	if caller == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "missing wallet address", "set the "+middleware.WalletAddressHeader+" header")
		return
	}

	if err := h.service.EmergencyExpireSession(c.Request.Context(), &application.EmergencyExpireCommand{
		Caller: caller,
		User:   c.Param("address"),
	}); err != nil {
		writeDomainError(c, err)
		return
	}
	response.Success(c, gin.H{"user": domain.NormalizeAddress(c.Param("address"))})
}

func (h *Handler) GetSession(c *gin.Context) {
	dto, err := h.service.GetSession(c.Request.Context(), c.Param("address"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	response.Success(c, dto)
}

func (h *Handler) IsValid(c *gin.Context) {
	valid, err := h.service.IsSessionValid(c.Request.Context(), c.Param("address"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	response.Success(c, gin.H{"valid": valid})
}

func (h *Handler) RemainingLimit(c *gin.Context) {
	remaining, err := h.service.GetRemainingLimit(c.Request.Context(), c.Param("address"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	response.Success(c, gin.H{"remaining": remaining.String()})
}

// writeDomainError 领域错误到 HTTP 状态码的统一映射
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidAddress):
		response.ErrorWithStatus(c, http.StatusBadRequest, "validation failed", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		response.ErrorWithStatus(c, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrSessionNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, "session not found", err.Error())
	case errors.Is(err, domain.ErrSessionAlreadyExists),
		errors.Is(err, domain.ErrSessionInvalid),
		errors.Is(err, domain.ErrBudgetExceeded):
		response.ErrorWithStatus(c, http.StatusConflict, "session conflict", err.Error())
	default:
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error", err.Error())
	}
}
