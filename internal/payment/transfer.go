package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"mailledger/backend/internal/domain"
)

// Transferrer 划转附带金额的外部能力。
//
// 消息附带金额时在发送请求内同步调用，与异步通知结果相互独立：
// 划转成功与否不影响通知的发出，通知失败也不回滚划转。
type Transferrer interface {
	Transfer(ctx context.Context, to string, amount domain.Amount) error
}

// HTTPTransferrer 调用外部支付服务完成划转。
type HTTPTransferrer struct {
	url        string
	httpClient *http.Client
}

// NewHTTPTransferrer 创建支付服务客户端。
func NewHTTPTransferrer(url string, timeout time.Duration) *HTTPTransferrer {
	return &HTTPTransferrer{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type transferRequest struct {
	To     string        `json:"to"`
	Amount domain.Amount `json:"amount"`
}

// Transfer 同步发起一次划转，非 2xx 响应视为失败。
func (t *HTTPTransferrer) Transfer(ctx context.Context, to string, amount domain.Amount) error {
	body, err := json.Marshal(transferRequest{To: to, Amount: amount})
	if err != nil {
		return fmt.Errorf("failed to marshal transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transfer request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("payment service returned status %d", resp.StatusCode)
	}
	return nil
}

// LogTransferrer 开发环境实现：只记录日志，不做真实划转。
type LogTransferrer struct {
	log *zap.Logger
}

// NewLogTransferrer 创建日志划转器。
func NewLogTransferrer(log *zap.Logger) *LogTransferrer {
	return &LogTransferrer{log: log}
}

// Transfer 记录一次模拟划转。
func (t *LogTransferrer) Transfer(_ context.Context, to string, amount domain.Amount) error {
	t.log.Info("simulated payment transfer",
		zap.String("to", to),
		zap.String("amount", amount.String()),
	)
	return nil
}
