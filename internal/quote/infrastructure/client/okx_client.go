// Package client OKX DEX 聚合器 REST 客户端
package client

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/wyfcoding/zksession/internal/quote/domain"
	"github.com/wyfcoding/zksession/pkg/metrics"
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Config OKX 客户端配置
type Config struct {
	BaseURL    string
	APIKey     string
	SecretKey  string
	Passphrase string
	Timeout    time.Duration
}

// OKXClient 实现 domain.AggregatorClient，
// 所有请求按 OKX 规范签名：base64(HMAC-SHA256(secret, ts+method+path+body))
type OKXClient struct {
	baseURL    *url.URL
	apiKey     string
	secretKey  string
	passphrase string
	httpClient *http.Client
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewOKXClient 创建 OKX 客户端实例
func NewOKXClient(cfg Config, m *metrics.Metrics) (*OKXClient, error) {
	if cfg.APIKey == "" || cfg.SecretKey == "" || cfg.Passphrase == "" {
		return nil, domain.ErrMissingCredentials
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid aggregator base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &OKXClient{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		secretKey:  cfg.SecretKey,
		passphrase: cfg.Passphrase,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    m,
		now:        time.Now,
	}, nil
}

// WithClock 替换时间源，签名测试用
func (c *OKXClient) WithClock(now func() time.Time) *OKXClient {
	c.now = now
	return c
}

func (c *OKXClient) sign(timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(timestamp + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// envelope OKX 统一响应包装
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// get 发起签名 GET 请求并解出 data 数组
func (c *OKXClient) get(ctx context.Context, endpoint string, query url.Values, dest interface{}) error {
	start := time.Now()
	err := c.doGet(ctx, endpoint, query, dest)
	if c.metrics != nil {
		c.metrics.AggregatorRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if err != nil {
			c.metrics.AggregatorErrorsTotal.WithLabelValues(endpoint).Inc()
		}
	}
	return err
}

func (c *OKXClient) doGet(ctx context.Context, endpoint string, query url.Values, dest interface{}) error {
	requestPath := c.baseURL.Path + endpoint
	if encoded := query.Encode(); encoded != "" {
		requestPath += "?" + encoded
	}

	reqURL := *c.baseURL
	reqURL.Path = c.baseURL.Path + endpoint
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return err
	}

	timestamp := c.now().UTC().Format(timestampLayout)
	req.Header.Set("OK-ACCESS-KEY", c.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", c.sign(timestamp, http.MethodGet, requestPath, ""))
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.passphrase)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d: %s", domain.ErrUpstream, resp.StatusCode, body)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: malformed response: %v", domain.ErrUpstream, err)
	}
	if env.Code != "0" {
		return &domain.APIError{Code: env.Code, Msg: env.Msg}
	}
	return json.Unmarshal(env.Data, dest)
}

func swapQuery(req *domain.SwapRequest) url.Values {
	query := url.Values{}
	query.Set("chainIndex", req.ChainIndex)
	query.Set("fromTokenAddress", req.FromTokenAddress)
	query.Set("toTokenAddress", req.ToTokenAddress)
	query.Set("amount", req.Amount)
	query.Set("slippage", req.Slippage)
	if req.UserWalletAddress != "" {
		query.Set("userWalletAddress", req.UserWalletAddress)
	}
	if req.GasLevel != "" {
		query.Set("gasLevel", req.GasLevel)
	}
	return query
}

// GetSwapQuote 获取报价，报价是指示性的，不校验会话
func (c *OKXClient) GetSwapQuote(ctx context.Context, req *domain.SwapRequest) (*domain.QuoteResult, error) {
	var results []domain.QuoteResult
	if err := c.get(ctx, "/dex/aggregator/quote", swapQuery(req), &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: empty quote result", domain.ErrUpstream)
	}
	return &results[0], nil
}

// GetSwapTransaction 获取换币交易数据与路由结果
func (c *OKXClient) GetSwapTransaction(ctx context.Context, req *domain.SwapRequest) (*domain.SwapResult, error) {
	var results []domain.SwapResult
	if err := c.get(ctx, "/dex/aggregator/swap", swapQuery(req), &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: empty swap result", domain.ErrUpstream)
	}
	return &results[0], nil
}

// okxToken OKX all-tokens 接口的条目结构
type okxToken struct {
	TokenSymbol          string `json:"tokenSymbol"`
	TokenContractAddress string `json:"tokenContractAddress"`
	Decimals             string `json:"decimals"`
}

// GetSupportedTokens 获取链上支持的代币列表
func (c *OKXClient) GetSupportedTokens(ctx context.Context, chainIndex string) ([]domain.Token, error) {
	query := url.Values{}
	query.Set("chainIndex", chainIndex)

	var raw []okxToken
	if err := c.get(ctx, "/dex/aggregator/all-tokens", query, &raw); err != nil {
		return nil, err
	}

	tokens := make([]domain.Token, 0, len(raw))
	for _, t := range raw {
		decimals, err := strconv.Atoi(t.Decimals)
		if err != nil {
			// 精度字段不可解析的条目不可用，跳过而不是按 0 精度返回
			slog.Warn("skipping token with malformed decimals",
				"symbol", t.TokenSymbol,
				"address", t.TokenContractAddress,
				"decimals", t.Decimals,
			)
			continue
		}
		tokens = append(tokens, domain.Token{
			Symbol:   t.TokenSymbol,
			Address:  t.TokenContractAddress,
			Decimals: decimals,
		})
	}
	return tokens, nil
}

// okxLiquidity OKX get-liquidity 接口的条目结构
type okxLiquidity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Logo string `json:"logo"`
}

// GetLiquiditySources 获取聚合器接入的流动性来源
func (c *OKXClient) GetLiquiditySources(ctx context.Context, chainIndex string) ([]domain.LiquiditySource, error) {
	query := url.Values{}
	query.Set("chainIndex", chainIndex)

	var raw []okxLiquidity
	if err := c.get(ctx, "/dex/aggregator/get-liquidity", query, &raw); err != nil {
		return nil, err
	}

	sources := make([]domain.LiquiditySource, 0, len(raw))
	for _, s := range raw {
		sources = append(sources, domain.LiquiditySource{ID: s.ID, Name: s.Name, Logo: s.Logo})
	}
	return sources, nil
}

// GetMarketTicker 获取现货行情快照
func (c *OKXClient) GetMarketTicker(ctx context.Context, instID string) (*domain.Ticker, error) {
	query := url.Values{}
	query.Set("instId", instID)

	var results []domain.Ticker
	if err := c.get(ctx, "/market/ticker", query, &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: empty ticker result", domain.ErrUpstream)
	}
	return &results[0], nil
}
