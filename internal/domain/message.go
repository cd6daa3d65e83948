package domain

import "time"

// MessageID 消息的全局唯一标识，由单调递增计数器分配，删除后也不会复用。
type MessageID uint64

// Message 表示一条已记录的消息。
//
// 发件人与收件人不保存在记录本身，而是通过发送/接收索引维护；
// 删除权限校验即基于发送索引的归属关系。
type Message struct {
	ID        MessageID `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	// Amount 随消息附带的金额，未附带时为 nil
	Amount *Amount `json:"amount,omitempty"`
}
