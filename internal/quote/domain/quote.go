// Package domain 聚合器报价领域模型
package domain

import (
	"context"
	"errors"
	"fmt"
)

// SwapRequest 询价/换币请求，amount 为 fromToken 最小单位的整数字符串
type SwapRequest struct {
	ChainIndex        string `json:"chainIndex"`
	FromTokenAddress  string `json:"fromTokenAddress"`
	ToTokenAddress    string `json:"toTokenAddress"`
	Amount            string `json:"amount"`
	Slippage          string `json:"slippage"`
	UserWalletAddress string `json:"userWalletAddress"`
	GasLevel          string `json:"gasLevel,omitempty"`
}

// TokenRef 路由结果中的代币引用
type TokenRef struct {
	TokenContractAddress string `json:"tokenContractAddress"`
	TokenSymbol          string `json:"tokenSymbol"`
	Decimal              string `json:"decimal"`
}

// DexRouter 单条路由及其占比
type DexRouter struct {
	Router        string `json:"router"`
	RouterPercent string `json:"routerPercent"`
}

// QuoteResult 聚合器路由结果
type QuoteResult struct {
	FromToken             TokenRef    `json:"fromToken"`
	ToToken               TokenRef    `json:"toToken"`
	FromTokenAmount       string      `json:"fromTokenAmount"`
	ToTokenAmount         string      `json:"toTokenAmount"`
	PriceImpactPercentage string      `json:"priceImpactPercentage"`
	EstimateGasFee        string      `json:"estimateGasFee"`
	DexRouterList         []DexRouter `json:"dexRouterList"`
}

// SwapTransaction 可直接签名广播的链上交易数据
type SwapTransaction struct {
	From             string `json:"from"`
	To               string `json:"to"`
	Data             string `json:"data"`
	Value            string `json:"value"`
	Gas              string `json:"gas"`
	GasPrice         string `json:"gasPrice"`
	MinReceiveAmount string `json:"minReceiveAmount"`
}

// SwapResult swap 接口同时返回路由结果与交易数据
type SwapResult struct {
	RouterResult QuoteResult     `json:"routerResult"`
	Tx           SwapTransaction `json:"tx"`
}

// Token 链上代币元数据
type Token struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
}

// LiquiditySource 聚合器接入的流动性来源
type LiquiditySource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Logo string `json:"logo"`
}

// Ticker 现货行情快照
type Ticker struct {
	InstID    string `json:"instId"`
	Last      string `json:"last"`
	Open24h   string `json:"open24h"`
	High24h   string `json:"high24h"`
	Low24h    string `json:"low24h"`
	Vol24h    string `json:"vol24h"`
	Timestamp string `json:"ts"`
}

// AggregatorClient 上游聚合器访问接口
type AggregatorClient interface {
	GetSwapQuote(ctx context.Context, req *SwapRequest) (*QuoteResult, error)
	GetSwapTransaction(ctx context.Context, req *SwapRequest) (*SwapResult, error)
	GetSupportedTokens(ctx context.Context, chainIndex string) ([]Token, error)
	GetLiquiditySources(ctx context.Context, chainIndex string) ([]LiquiditySource, error)
	GetMarketTicker(ctx context.Context, instID string) (*Ticker, error)
}

// APIError 上游返回的业务错误（code != "0"）
type APIError struct {
	Code string
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aggregator error %s: %s", e.Code, e.Msg)
}

// DefaultTokens 常用代币兜底表，token 列表接口不可用时使用
var DefaultTokens = []Token{
	{Symbol: "ETH", Address: "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee", Decimals: 18},
	{Symbol: "USDT", Address: "0xdac17f958d2ee523a2206206994597c13d831ec7", Decimals: 6},
	{Symbol: "USDC", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6},
	{Symbol: "WBTC", Address: "0x2260fac5e5542a773aa44fbcfedf7c193bc2c599", Decimals: 8},
}

// FindToken 在兜底表中按地址查找代币元数据
func FindToken(address string) (Token, bool) {
	for _, t := range DefaultTokens {
		if t.Address == address {
			return t, true
		}
	}
	return Token{}, false
}

var (
	ErrMissingCredentials = errors.New("aggregator credentials are not configured")
	ErrInvalidSwapRequest = errors.New("invalid swap request")
	ErrUpstream           = errors.New("aggregator request failed")
)
