package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"mailledger/backend/internal/domain"
	"mailledger/backend/internal/middleware"
	"mailledger/backend/internal/service"
)

// MailHandler 消息相关的 HTTP 处理逻辑。
type MailHandler struct {
	mail *service.MailService
}

// NewMailHandler 创建消息处理器。
func NewMailHandler(mail *service.MailService) *MailHandler {
	return &MailHandler{mail: mail}
}

// sendMessageRequest 发送消息请求体
type sendMessageRequest struct {
	Receiver string `json:"receiver" binding:"required"`
	Title    string `json:"title" binding:"required"`
	Content  string `json:"content"`
	// Amount 可选附带金额，十进制字符串
	Amount *string `json:"amount"`
}

// SendMessage 处理 POST /v1/messages
func (h *MailHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	input := service.SendMessageInput{
		Receiver: req.Receiver,
		Title:    req.Title,
		Content:  req.Content,
	}
	if req.Amount != nil {
		amount, err := domain.ParseAmount(*req.Amount)
		if err != nil {
			respondError(c, err)
			return
		}
		input.Amount = &amount
	}

	sender := middleware.CallerAccount(c)
	msg, _, err := h.mail.Send(c.Request.Context(), sender, input)
	if err != nil {
		respondError(c, err)
		return
	}
	Created(c, msg)
}

// GetMessage 处理 GET /v1/messages/:id
func (h *MailHandler) GetMessage(c *gin.Context) {
	id, ok := parseMessageID(c)
	if !ok {
		return
	}
	msg, err := h.mail.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, msg)
}

// DeleteMessage 处理 DELETE /v1/messages/:id
func (h *MailHandler) DeleteMessage(c *gin.Context) {
	id, ok := parseMessageID(c)
	if !ok {
		return
	}
	requester := middleware.CallerAccount(c)
	if err := h.mail.Delete(c.Request.Context(), id, requester); err != nil {
		respondError(c, err)
		return
	}
	NoContent(c)
}

// ListSent 处理 GET /v1/accounts/:account/sent
func (h *MailHandler) ListSent(c *gin.Context) {
	msgs, err := h.mail.ListSent(c.Request.Context(), c.Param("account"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, msgs)
}

// ListReceived 处理 GET /v1/accounts/:account/received
func (h *MailHandler) ListReceived(c *gin.Context) {
	msgs, err := h.mail.ListReceived(c.Request.Context(), c.Param("account"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, msgs)
}

// CountSent 处理 GET /v1/accounts/:account/sent/count
func (h *MailHandler) CountSent(c *gin.Context) {
	count, err := h.mail.CountSent(c.Request.Context(), c.Param("account"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"count": count})
}

// CountReceived 处理 GET /v1/accounts/:account/received/count
func (h *MailHandler) CountReceived(c *gin.Context) {
	count, err := h.mail.CountReceived(c.Request.Context(), c.Param("account"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"count": count})
}

// Stats 处理 GET /v1/stats/messages
func (h *MailHandler) Stats(c *gin.Context) {
	stats, err := h.mail.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, stats)
}

// parseMessageID 解析路径中的消息 ID，格式错误时直接响应 400。
func parseMessageID(c *gin.Context) (domain.MessageID, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		BadRequest(c, MsgInvalidID)
		return 0, false
	}
	return domain.MessageID(id), true
}
