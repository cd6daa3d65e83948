package httptransport

import (
	"github.com/gin-gonic/gin"

	"mailledger/backend/internal/domain"
	"mailledger/backend/internal/middleware"
	"mailledger/backend/internal/service"
)

// DonationHandler 捐赠相关的 HTTP 处理逻辑。
type DonationHandler struct {
	donations *service.DonationService
}

// NewDonationHandler 创建捐赠处理器。
func NewDonationHandler(donations *service.DonationService) *DonationHandler {
	return &DonationHandler{donations: donations}
}

type sendDonationRequest struct {
	Receiver string `json:"receiver" binding:"required"`
	Title    string `json:"title" binding:"required"`
	Content  string `json:"content"`
	Amount   string `json:"amount" binding:"required"`
}

// SendDonation 处理 POST /v1/donations
//
// 同步等待外部通知回调确认，失败时消息保留但捐赠不入账。
func (h *DonationHandler) SendDonation(c *gin.Context) {
	var req sendDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	sender := middleware.CallerAccount(c)
	msg, err := h.donations.Send(c.Request.Context(), sender, service.SendDonationInput{
		Receiver: req.Receiver,
		Title:    req.Title,
		Content:  req.Content,
		Amount:   amount,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	Created(c, msg)
}

// GetDonation 处理 GET /v1/donations/:account
func (h *DonationHandler) GetDonation(c *gin.Context) {
	entry, err := h.donations.Confirmed(c.Param("account"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, entry)
}
