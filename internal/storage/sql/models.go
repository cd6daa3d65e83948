package sql

import (
	"fmt"
	"time"

	"mailledger/backend/internal/domain"
)

// messageRow 消息记录表。ID 由计数器分配，不使用数据库自增。
type messageRow struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement:false"`
	Title     string    `gorm:"type:varchar(500);not null"`
	Content   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null"`
	Amount    *string   `gorm:"type:varchar(40)"` // 128 位金额的十进制字符串，NULL 表示未附带
}

func (messageRow) TableName() string { return "messages" }

func (r *messageRow) toDomain() (*domain.Message, error) {
	msg := &domain.Message{
		ID:        domain.MessageID(r.ID),
		Title:     r.Title,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
	}
	if r.Amount != nil {
		amount, err := domain.ParseAmount(*r.Amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount for message %d: %w", r.ID, err)
		}
		msg.Amount = &amount
	}
	return msg, nil
}

// sentIndexRow 发送索引表，(account, message_id) 联合主键即集合成员。
type sentIndexRow struct {
	Account   string `gorm:"primaryKey;type:varchar(64)"`
	MessageID uint64 `gorm:"primaryKey;autoIncrement:false"`
}

func (sentIndexRow) TableName() string { return "sent_index" }

// receivedIndexRow 接收索引表。
type receivedIndexRow struct {
	Account   string `gorm:"primaryKey;type:varchar(64)"`
	MessageID uint64 `gorm:"primaryKey;autoIncrement:false"`
}

func (receivedIndexRow) TableName() string { return "received_index" }

// accountRow 账户台账表。
type accountRow struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)"`
	SecretHash  string    `gorm:"type:varchar(100)"`
	UsedStorage uint64    `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (accountRow) TableName() string { return "accounts" }

// donationRow 捐赠台账表，每账户仅保留最近一次已确认的捐赠。
type donationRow struct {
	Account     string    `gorm:"primaryKey;type:varchar(64)"`
	Amount      string    `gorm:"type:varchar(40);not null"`
	ConfirmedAt time.Time `gorm:"not null"`
}

func (donationRow) TableName() string { return "donations" }

// counterRow 标量计数器表，目前只有消息 ID 计数器一行。
type counterRow struct {
	Name  string `gorm:"primaryKey;type:varchar(32)"`
	Value uint64 `gorm:"not null;default:0"`
}

func (counterRow) TableName() string { return "counters" }
