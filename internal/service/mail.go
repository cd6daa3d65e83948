package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"mailledger/backend/internal/domain"
	"mailledger/backend/internal/monitoring"
	"mailledger/backend/internal/notify"
	"mailledger/backend/internal/payment"
	"mailledger/backend/internal/storage/redis"
)

// MailEventSink 接收新消息事件的实时推送端（WebSocket Hub）。
type MailEventSink interface {
	NotifyNewMail(receiver string, msg *domain.Message)
}

// MailService 封装消息相关业务操作。
//
// 发送流程严格保持"先本地落账、后发出外部调用"的顺序：记录、索引、
// 存储计费在同一存储事务内完成，之后才发出异步通知；本地写入绝不以
// 通知结果为条件。
type MailService struct {
	store        domain.Store
	orchestrator *notify.Orchestrator
	payments     payment.Transferrer
	metrics      *monitoring.Metrics
	log          *zap.Logger

	storageCost     uint64 // 每条消息的存储费用（最小货币单位）
	donationAccount string // 附带金额的划转目标账户

	cache *redis.Cache  // 可选的消息读缓存
	sink  MailEventSink // 可选的实时推送端
	clock func() time.Time
}

// NewMailService 创建消息业务服务。
func NewMailService(
	store domain.Store,
	orchestrator *notify.Orchestrator,
	payments payment.Transferrer,
	metrics *monitoring.Metrics,
	storageCost uint64,
	donationAccount string,
	log *zap.Logger,
) *MailService {
	return &MailService{
		store:           store,
		orchestrator:    orchestrator,
		payments:        payments,
		metrics:         metrics,
		log:             log,
		storageCost:     storageCost,
		donationAccount: donationAccount,
		clock:           func() time.Time { return time.Now().UTC() },
	}
}

// SetCache 设置消息读缓存（可选）。
func (s *MailService) SetCache(cache *redis.Cache) {
	s.cache = cache
}

// SetEventSink 设置实时推送端（可选，避免与 websocket 包循环依赖）。
func (s *MailService) SetEventSink(sink MailEventSink) {
	s.sink = sink
}

// SetClock 注入时钟，仅测试使用。
func (s *MailService) SetClock(clock func() time.Time) {
	s.clock = clock
}

// SendMessageInput 定义发送消息所需的输入。
type SendMessageInput struct {
	Receiver string
	Title    string
	Content  string
	Amount   *domain.Amount // 可选附带金额
}

// Send 发送一条消息。
//
// 本地写入完成后：若附带金额，同步调用支付划转；随后发出恰好一次
// 异步通知。两个副作用相互独立，划转失败不阻止通知发出。
// 返回的 Call 可用于等待通知结果（捐赠路径需要）。
func (s *MailService) Send(ctx context.Context, sender string, input SendMessageInput) (*domain.Message, *notify.Call, error) {
	if err := domain.ValidateAccountID(input.Receiver); err != nil {
		return nil, nil, err
	}
	if err := domain.ValidateMessageContent(input.Title, input.Content); err != nil {
		return nil, nil, err
	}

	msg := &domain.Message{
		Title:     input.Title,
		Content:   input.Content,
		CreatedAt: s.clock(),
		Amount:    input.Amount,
	}

	// 同一存储事务：记录 + 双向索引 + 存储计费
	if err := s.store.CreateMessage(msg, sender, input.Receiver, s.storageCost); err != nil {
		return nil, nil, err
	}
	s.metrics.MessagesSent.Inc()

	// 副作用一：附带金额划转（同步，与通知结果无关）。
	// 本地状态已提交，划转失败不回滚，只记录并告警。
	if input.Amount != nil && !input.Amount.IsZero() {
		if err := s.payments.Transfer(ctx, s.donationAccount, *input.Amount); err != nil {
			s.metrics.PaymentTransfers.WithLabelValues("failed").Inc()
			s.log.Error("payment transfer failed",
				zap.String("sender", sender),
				zap.String("amount", input.Amount.String()),
				zap.Error(err),
			)
		} else {
			s.metrics.PaymentTransfers.WithLabelValues("ok").Inc()
		}
	}

	// 副作用二：异步通知，恰好一次，结果经回调解析
	call := s.orchestrator.Issue(ctx, notify.Payload{
		Receiver: input.Receiver,
		Title:    input.Title,
		Content:  input.Content,
		Amount:   input.Amount,
	}, notify.Correlation{
		Sender: sender,
		Amount: input.Amount,
	})

	if s.sink != nil {
		s.sink.NotifyNewMail(input.Receiver, msg)
	}

	s.log.Info("message recorded",
		zap.Uint64("message_id", uint64(msg.ID)),
		zap.String("sender", sender),
		zap.String("receiver", input.Receiver),
	)
	return msg, call, nil
}

// Get 按 ID 读取消息，优先走缓存。
func (s *MailService) Get(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	if s.cache != nil {
		if msg, err := s.cache.GetCachedMessage(ctx, id); err != nil {
			s.log.Warn("message cache read failed", zap.Error(err))
		} else if msg != nil {
			return msg, nil
		}
	}

	msg, err := s.store.GetMessage(id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.CacheMessage(ctx, msg); err != nil {
			s.log.Warn("message cache write failed", zap.Error(err))
		}
	}
	return msg, nil
}

// Delete 删除消息，仅原始发件人可删除。
//
// 只移除记录本身；索引中的 ID 保留，读取方跳过已删除的消息。
func (s *MailService) Delete(ctx context.Context, id domain.MessageID, requester string) error {
	isSender, err := s.store.IsSender(requester, id)
	if err != nil {
		return err
	}
	if !isSender {
		// 消息不存在时同样走这条路径：不向非发件人泄露消息是否存在
		if _, err := s.store.GetMessage(id); err != nil {
			return err
		}
		return domain.ErrPermissionDenied
	}

	if err := s.store.DeleteMessage(id); err != nil {
		return err
	}
	s.metrics.MessagesDeleted.Inc()

	if s.cache != nil {
		if err := s.cache.InvalidateMessage(ctx, id); err != nil {
			s.log.Warn("message cache invalidation failed", zap.Error(err))
		}
	}

	s.log.Info("message deleted",
		zap.Uint64("message_id", uint64(id)),
		zap.String("requester", requester),
	)
	return nil
}

// ListSent 返回账户发送的消息，已删除的跳过。
func (s *MailService) ListSent(ctx context.Context, account string) ([]domain.Message, error) {
	ids, err := s.store.ListSentIDs(account)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, ids)
}

// ListReceived 返回账户接收的消息，已删除的跳过。
func (s *MailService) ListReceived(ctx context.Context, account string) ([]domain.Message, error) {
	ids, err := s.store.ListReceivedIDs(account)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, ids)
}

// CountSent 返回账户发送的现存消息数，与 ListSent 的长度恒等。
func (s *MailService) CountSent(ctx context.Context, account string) (int, error) {
	msgs, err := s.ListSent(ctx, account)
	if err != nil {
		return 0, err
	}
	return len(msgs), nil
}

// CountReceived 返回账户接收的现存消息数，与 ListReceived 的长度恒等。
func (s *MailService) CountReceived(ctx context.Context, account string) (int, error) {
	msgs, err := s.ListReceived(ctx, account)
	if err != nil {
		return 0, err
	}
	return len(msgs), nil
}

// Stats 返回消息全局计数并刷新存量指标。
func (s *MailService) Stats(_ context.Context) (*domain.MessageStats, error) {
	stats, err := s.store.MessageStats()
	if err != nil {
		return nil, err
	}
	s.metrics.MessagesLive.Set(float64(stats.Live))
	return stats, nil
}

// resolve 把索引 ID 解析为消息记录，已删除的 ID 跳过而不报错，
// 避免一次删除导致列表整体失败。
func (s *MailService) resolve(_ context.Context, ids []domain.MessageID) ([]domain.Message, error) {
	msgs := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := s.store.GetMessage(id)
		if err != nil {
			if errors.Is(err, domain.ErrMessageNotFound) {
				continue
			}
			return nil, err
		}
		msgs = append(msgs, *msg)
	}
	return msgs, nil
}
