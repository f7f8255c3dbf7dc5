// Package middleware 提供 Gin 通用中间件（日志、panic recover、CORS、调用方身份、限流）
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wyfcoding/zksession/pkg/logger"
)

// RequestIDKey gin context key for request ID
const RequestIDKey = "request_id"

// WalletAddressKey gin context key for the authenticated wallet address
const WalletAddressKey = "wallet_address"

// WalletAddressHeader 调用方钱包地址请求头
const WalletAddressHeader = "X-Wallet-Address"

// GinLoggingMiddleware Gin 日志中间件
func GinLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		c.Set(RequestIDKey, requestID)

		ctx := logger.ContextWithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Info(ctx, "HTTP request completed",
			"method", method,
			"path", path,
			"status_code", c.Writer.Status(),
			"client_ip", c.ClientIP(),
			"duration", time.Since(start),
		)
	}
}

// GinRecoveryMiddleware Gin panic 恢复中间件
func GinRecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID, _ := c.Get(RequestIDKey)

				logger.Error(c.Request.Context(), "HTTP request panicked",
					"request_id", requestID,
					"panic", err,
				)

				c.AbortWithStatusJSON(500, gin.H{
					"error":      "Internal server error",
					"request_id": requestID,
				})
			}
		}()
		c.Next()
	}
}

// GinCORSMiddleware Gin CORS 中间件
func GinCORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Wallet-Address")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// GinWalletIdentityMiddleware 从请求头提取调用方钱包地址并写入 context。
// 地址统一转小写；账本把该地址作为可信的调用方身份使用。
func GinWalletIdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr := strings.ToLower(strings.TrimSpace(c.GetHeader(WalletAddressHeader)))
		if addr != "" {
			c.Set(WalletAddressKey, addr)
		}
		c.Next()
	}
}

// CallerAddress 读取钱包身份中间件写入的调用方地址
func CallerAddress(c *gin.Context) string {
	if v, ok := c.Get(WalletAddressKey); ok {
		if addr, ok := v.(string); ok {
			return addr
		}
	}
	return ""
}
