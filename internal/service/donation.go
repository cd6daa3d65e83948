package service

import (
	"context"

	"go.uber.org/zap"

	"mailledger/backend/internal/domain"
)

// DonationService 封装捐赠发送与查询。
//
// 捐赠即一条附带金额的消息，外加"两阶段"确认：本地写入乐观提交，
// 捐赠台账条目悲观等待外部通知调用成功后才落账。
type DonationService struct {
	mail  *MailService
	store domain.Store
	log   *zap.Logger
}

// NewDonationService 创建捐赠业务服务。
func NewDonationService(mail *MailService, store domain.Store, log *zap.Logger) *DonationService {
	return &DonationService{
		mail:  mail,
		store: store,
		log:   log,
	}
}

// SendDonationInput 定义发送捐赠所需的输入。
type SendDonationInput struct {
	Receiver string
	Title    string
	Content  string
	Amount   domain.Amount // 捐赠金额，必填
}

// Send 发送一笔捐赠并阻塞等待外部通知调用解析。
//
// 成功：捐赠台账条目已写入，返回消息记录。
// 失败：返回 ErrExternalCallFailed；消息记录、索引与存储计费保留
// （宿主环境不支持对已提交写入的自动补偿回滚），台账无条目。
func (s *DonationService) Send(ctx context.Context, sender string, input SendDonationInput) (*domain.Message, error) {
	if input.Amount.IsZero() {
		return nil, domain.ErrAmountInvalid
	}

	amount := input.Amount
	msg, call, err := s.mail.Send(ctx, sender, SendMessageInput{
		Receiver: input.Receiver,
		Title:    input.Title,
		Content:  input.Content,
		Amount:   &amount,
	})
	if err != nil {
		return nil, err
	}

	// 挂起点：控制权交给外部服务，经回调恰好恢复一次
	if err := call.Wait(ctx); err != nil {
		return nil, err
	}

	s.log.Info("donation confirmed",
		zap.String("sender", sender),
		zap.String("amount", amount.String()),
		zap.Uint64("message_id", uint64(msg.ID)),
	)
	return msg, nil
}

// Confirmed 返回账户最近一次已确认的捐赠。
func (s *DonationService) Confirmed(account string) (*domain.DonationEntry, error) {
	return s.store.GetDonation(account)
}
