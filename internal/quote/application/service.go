package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/zksession/internal/quote/domain"
)

// ErrSessionRequired 钱包没有有效会话时拒绝换币
var ErrSessionRequired = errors.New("no valid session for wallet")

// SessionLedger 会话账本端口，换币执行前校验并扣减额度
type SessionLedger interface {
	IsSessionValid(ctx context.Context, user string) (bool, error)
	ExecuteTrade(ctx context.Context, caller, user string, amount decimal.Decimal) error
}

// QuoteApplicationService 报价编排服务
type QuoteApplicationService struct {
	aggregator domain.AggregatorClient
	ledger     SessionLedger
	chainIndex string
	logger     *slog.Logger
}

// NewQuoteApplicationService 创建报价编排服务实例
func NewQuoteApplicationService(aggregator domain.AggregatorClient, ledger SessionLedger, chainIndex string, logger *slog.Logger) *QuoteApplicationService {
	return &QuoteApplicationService{
		aggregator: aggregator,
		ledger:     ledger,
		chainIndex: chainIndex,
		logger:     logger,
	}
}

func (s *QuoteApplicationService) normalize(req *domain.SwapRequest) error {
	if req == nil {
		return domain.ErrInvalidSwapRequest
	}
	if req.ChainIndex == "" {
		req.ChainIndex = s.chainIndex
	}
	if req.Slippage == "" {
		req.Slippage = "0.5"
	}
	if req.FromTokenAddress == "" || req.ToTokenAddress == "" || req.Amount == "" {
		return domain.ErrInvalidSwapRequest
	}
	return nil
}

// GetQuote 指示性报价，不校验会话
func (s *QuoteApplicationService) GetQuote(ctx context.Context, req *domain.SwapRequest) (*domain.QuoteResult, error) {
	if err := s.normalize(req); err != nil {
		return nil, err
	}
	return s.aggregator.GetSwapQuote(ctx, req)
}

// ExecuteSwap 先取交易数据，账本扣减成功后才返回，
// 扣减失败时交易数据不外泄，调用方无法绕过额度广播
func (s *QuoteApplicationService) ExecuteSwap(ctx context.Context, caller string, req *domain.SwapRequest) (*domain.SwapResult, error) {
	if err := s.normalize(req); err != nil {
		return nil, err
	}
	if req.UserWalletAddress == "" {
		req.UserWalletAddress = caller
	}

	valid, err := s.ledger.IsSessionValid(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, fmt.Errorf("swap rejected: %w", ErrSessionRequired)
	}

	result, err := s.aggregator.GetSwapTransaction(ctx, req)
	if err != nil {
		return nil, err
	}

	amount, err := s.ledgerAmount(req.FromTokenAddress, req.Amount)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.ExecuteTrade(ctx, caller, caller, amount); err != nil {
		return nil, err
	}

	s.logger.Info("swap executed",
		"caller", caller,
		"from", req.FromTokenAddress,
		"to", req.ToTokenAddress,
		"amount", amount.String(),
	)
	return result, nil
}

// ledgerAmount 把最小单位整数换算成账本使用的十进制数量
func (s *QuoteApplicationService) ledgerAmount(tokenAddress, raw string) (decimal.Decimal, error) {
	base, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad amount %q", domain.ErrInvalidSwapRequest, raw)
	}

	decimals := int32(18)
	if token, ok := domain.FindToken(tokenAddress); ok {
		decimals = int32(token.Decimals)
	}
	return base.Shift(-decimals), nil
}

// GetSupportedTokens token 列表接口失败时退回内置兜底表
func (s *QuoteApplicationService) GetSupportedTokens(ctx context.Context) ([]domain.Token, error) {
	tokens, err := s.aggregator.GetSupportedTokens(ctx, s.chainIndex)
	if err != nil {
		s.logger.Warn("token list unavailable, using built-in table", "error", err)
		return domain.DefaultTokens, nil
	}
	if len(tokens) == 0 {
		return domain.DefaultTokens, nil
	}
	return tokens, nil
}

// GetLiquiditySources 获取流动性来源列表
func (s *QuoteApplicationService) GetLiquiditySources(ctx context.Context) ([]domain.LiquiditySource, error) {
	return s.aggregator.GetLiquiditySources(ctx, s.chainIndex)
}

// GetMarketTicker 获取行情快照
func (s *QuoteApplicationService) GetMarketTicker(ctx context.Context, instID string) (*domain.Ticker, error) {
	if instID == "" {
		return nil, domain.ErrInvalidSwapRequest
	}
	return s.aggregator.GetMarketTicker(ctx, instID)
}
