package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mailledger/backend/internal/domain"
)

// Payload 出站通知的载荷，携带消息内容与可选附带金额。
type Payload struct {
	Receiver string         `json:"receiver"`
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Amount   *domain.Amount `json:"amount,omitempty"`
}

// Notifier 外部通知服务的抽象。实现只需上报成功/失败，
// 编排器不关心通知的具体投递方式。
type Notifier interface {
	Notify(ctx context.Context, payload Payload) error
}

// HTTPNotifier 把通知以签名 JSON POST 的形式投递到外部服务。
type HTTPNotifier struct {
	url        string
	secret     string
	httpClient *http.Client
}

// NewHTTPNotifier 创建 HTTP 通知客户端。
func NewHTTPNotifier(url, secret string, timeout time.Duration) *HTTPNotifier {
	return &HTTPNotifier{
		url:    url,
		secret: secret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Notify 投递一次通知，无重试；非 2xx 响应视为失败。
func (n *HTTPNotifier) Notify(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notify payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-MailLedger-Signature", n.sign(body))

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify request failed: %w", err)
	}
	defer resp.Body.Close()

	// 排空响应体以便连接复用
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify service returned status %d", resp.StatusCode)
	}
	return nil
}

// sign 计算请求体的 HMAC-SHA256 签名，供接收方校验来源。
func (n *HTTPNotifier) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(n.secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
