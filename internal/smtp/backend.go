package smtp

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/mail"
	"strings"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"mailledger/backend/internal/domain"
	"mailledger/backend/internal/service"
)

// Backend 实现 go-smtp 的 Backend 接口。
//
// 这是一个只接收邮件的 SMTP 入口：
// - 只接受发往本服务域名的邮件
// - 发件人与收件人的本地部分都必须是已开通的账户
// - 不支持对外发送邮件，不会成为开放中继
type Backend struct {
	mail   *service.MailService
	domain string
	log    *zap.Logger
}

// NewBackend 创建 SMTP Backend。
func NewBackend(mailService *service.MailService, serviceDomain string, log *zap.Logger) *Backend {
	return &Backend{
		mail:   mailService,
		domain: strings.ToLower(serviceDomain),
		log:    log,
	}
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	return &session{backend: b}, nil
}

type session struct {
	backend    *Backend
	sender     string
	recipients []string
}

// Mail 处理 MAIL 命令。
//
// 发件人本地部分必须是已开通的账户，否则拒绝整封邮件。
func (s *session) Mail(from string, opts *gosmtp.MailOptions) error {
	account, ok := s.backend.localAccount(from)
	if !ok {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "sender not managed by this server",
		}
	}
	s.sender = account
	return nil
}

// Rcpt 处理 RCPT 命令。
//
// 只接受本服务域名下已开通账户的地址，其余一律 550 拒绝。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	account, ok := s.backend.localAccount(to)
	if !ok {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "relay access denied - domain not managed by this server",
		}
	}

	if err := domain.ValidateAccountID(account); err != nil {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "recipient account not found",
		}
	}

	s.recipients = append(s.recipients, account)
	return nil
}

// Data 处理邮件内容，为每个收件人创建一条消息。
func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(io.LimitReader(r, 1<<20)) // 1MB
	if err != nil {
		return err
	}

	subject, body := parseEmail(raw)
	if subject == "" {
		subject = "(no subject)"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, rcpt := range s.recipients {
		_, _, err := s.backend.mail.Send(ctx, s.sender, service.SendMessageInput{
			Receiver: rcpt,
			Title:    subject,
			Content:  body,
		})
		if err != nil {
			s.backend.log.Warn("inbound mail rejected",
				zap.String("sender", s.sender),
				zap.String("receiver", rcpt),
				zap.Error(err))
			if errors.Is(err, domain.ErrAccountNotProvisioned) || errors.Is(err, domain.ErrAccountNotFound) {
				return &gosmtp.SMTPError{
					Code:         550,
					EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
					Message:      "recipient account not found",
				}
			}
			return err
		}
	}

	return nil
}

// Reset 重置状态。
func (s *session) Reset() {
	s.sender = ""
	s.recipients = nil
}

// Logout 会话结束。
func (s *session) Logout() error {
	return nil
}

// localAccount 从邮件地址提取本地账户名，域名不匹配时返回 false。
func (b *Backend) localAccount(addr string) (string, bool) {
	addr = normalizeAddress(addr)
	parts := strings.Split(addr, "@")
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[1], b.domain) {
		return "", false
	}
	return parts[0], true
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}

// parseEmail 提取邮件主题与正文，解析失败时整包作为正文。
func parseEmail(raw []byte) (subject, body string) {
	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	if err != nil {
		return "", string(raw)
	}

	subject = decodeHeader(msg.Header.Get("Subject"))
	data, err := io.ReadAll(msg.Body)
	if err != nil {
		return subject, ""
	}
	return subject, strings.TrimSpace(string(data))
}

func decodeHeader(value string) string {
	if value == "" {
		return value
	}
	decoder := new(mime.WordDecoder)
	decoded, err := decoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}
