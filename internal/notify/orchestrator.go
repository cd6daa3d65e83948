package notify

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailledger/backend/internal/domain"
	"mailledger/backend/internal/monitoring"
	"mailledger/backend/internal/pool"
	"mailledger/backend/internal/storage"
)

// State 出站调用的状态机：Issued → Pending → {Committed | Aborted}。
type State int32

const (
	// StateIssued 调用已创建，尚未进入发送队列执行
	StateIssued State = iota
	// StatePending 调用已发出，等待外部服务回应
	StatePending
	// StateCommitted 外部调用成功，捐赠台账已落账
	StateCommitted
	// StateAborted 外部调用失败，回调事务中止；此前的本地写入保留
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIssued:
		return "issued"
	case StatePending:
		return "pending"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Correlation 从发起时刻携带到回调时刻的关联数据，
// 用于确定成功后写入哪个账户的捐赠台账条目。
type Correlation struct {
	Sender string
	Amount *domain.Amount
}

// Call 一次已发出的出站调用。每个调用恰好注册一个回调，
// 恰好被解析一次。
type Call struct {
	ID          string
	correlation Correlation

	state    atomic.Int32
	resolved atomic.Bool
	done     chan error
}

// State 返回调用当前状态。
func (c *Call) State() State {
	return State(c.state.Load())
}

// Wait 阻塞到调用解析完成。成功提交返回 nil，
// 外部调用失败返回 ErrExternalCallFailed。
func (c *Call) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-c.done:
		return err
	}
}

// Orchestrator 出站调用编排器。
//
// 本地状态变更（记录、索引、计费）总是在调用发出之前完成，且不以
// 调用结果为条件；只有捐赠台账条目以成功回调为前提。调用一经发出
// 不可取消、不重试，运行到两个终态之一。
type Orchestrator struct {
	notifier Notifier
	ledger   storage.DonationRepository
	pool     *pool.WorkerPool
	metrics  *monitoring.Metrics
	clock    func() time.Time
	log      *zap.Logger
}

// NewOrchestrator 创建编排器。metrics 可为 nil（测试场景）。
func NewOrchestrator(
	notifier Notifier,
	ledger storage.DonationRepository,
	workers *pool.WorkerPool,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		notifier: notifier,
		ledger:   ledger,
		pool:     workers,
		metrics:  metrics,
		clock:    func() time.Time { return time.Now().UTC() },
		log:      log,
	}
}

// SetClock 注入时钟，仅测试使用。
func (o *Orchestrator) SetClock(clock func() time.Time) {
	o.clock = clock
}

// Issue 发出恰好一次异步通知调用并注册恰好一个回调。
//
// 必须在本地状态写入完成之后调用。发出后请求上下文的取消不再影响
// 调用本身（context.WithoutCancel），调用运行到终态为止。
func (o *Orchestrator) Issue(ctx context.Context, payload Payload, corr Correlation) *Call {
	call := &Call{
		ID:          uuid.NewString(),
		correlation: corr,
		done:        make(chan error, 1),
	}
	call.state.Store(int32(StateIssued))

	callCtx := context.WithoutCancel(ctx)

	o.pool.Submit(func() {
		call.state.Store(int32(StatePending))
		err := o.notifier.Notify(callCtx, payload)
		o.resolve(call, err)
	})

	o.log.Debug("notify call issued",
		zap.String("call_id", call.ID),
		zap.String("sender", corr.Sender),
		zap.String("receiver", payload.Receiver),
	)
	return call
}

// resolve 回调入口：对单个调用恰好执行一次。
//
// 同一调用被解析第二次说明上游契约被破坏，这是程序缺陷而非可恢复
// 错误，直接 panic 中止，绝不静默忽略。
func (o *Orchestrator) resolve(call *Call, callErr error) {
	if !call.resolved.CompareAndSwap(false, true) {
		o.log.Error("duplicate resolution of notify call",
			zap.String("call_id", call.ID),
			zap.String("state", call.State().String()),
		)
		panic(fmt.Errorf("%w: call %s resolved more than once", domain.ErrProtocolViolation, call.ID))
	}

	if callErr != nil {
		call.state.Store(int32(StateAborted))
		o.observeOutcome(StateAborted)
		o.log.Error("notify call failed, donation not committed",
			zap.String("call_id", call.ID),
			zap.String("sender", call.correlation.Sender),
			zap.Error(callErr),
		)
		call.done <- fmt.Errorf("%w: %v", domain.ErrExternalCallFailed, callErr)
		return
	}

	// 成功回调是写入捐赠台账的唯一路径
	if amount := call.correlation.Amount; amount != nil && !amount.IsZero() {
		entry := &domain.DonationEntry{
			Account:     call.correlation.Sender,
			Amount:      *amount,
			ConfirmedAt: o.clock(),
		}
		if err := o.ledger.SaveDonation(entry); err != nil {
			call.state.Store(int32(StateAborted))
			o.observeOutcome(StateAborted)
			o.log.Error("failed to write donation ledger entry",
				zap.String("call_id", call.ID),
				zap.String("sender", call.correlation.Sender),
				zap.Error(err),
			)
			call.done <- err
			return
		}
		if o.metrics != nil {
			o.metrics.DonationsConfirmed.Inc()
		}
	}

	call.state.Store(int32(StateCommitted))
	o.observeOutcome(StateCommitted)
	o.log.Info("notify call committed",
		zap.String("call_id", call.ID),
		zap.String("sender", call.correlation.Sender),
	)
	call.done <- nil
}

func (o *Orchestrator) observeOutcome(s State) {
	if o.metrics != nil {
		o.metrics.NotifyCalls.WithLabelValues(s.String()).Inc()
	}
}
