package domain

// MessageStats 消息全局计数：累计创建数、当前存量与删除数。
// Deleted 恒等于 Created - Live。
type MessageStats struct {
	Created uint64 `json:"created"`
	Live    uint64 `json:"live"`
	Deleted uint64 `json:"deleted"`
}

// Store 聚合消息记录、收发索引、账户台账与捐赠台账四个存储分区。
//
// CreateMessage 是唯一的复合写入操作：分配消息 ID、写入记录、更新发送/
// 接收索引并对发件人计收存储费，四者在同一个存储事务内完成，避免出现
// 无索引的孤儿记录或指向不存在记录的索引。其余操作均为单分区读写。
type Store interface {
	// ========== 消息记录 ==========

	// CreateMessage 原子地创建消息：分配下一个 ID 写回 msg.ID，写入记录、
	// 双向索引，并向 sender 计收 storageCost。sender 未开通时返回
	// ErrAccountNotProvisioned 且不产生任何写入。
	CreateMessage(msg *Message, sender, receiver string, storageCost uint64) error
	GetMessage(id MessageID) (*Message, error)
	// DeleteMessage 删除消息记录本身；索引中的 ID 保留，由读取方跳过。
	DeleteMessage(id MessageID) error
	MessageStats() (*MessageStats, error)

	// ========== 收发索引 ==========

	ListSentIDs(account string) ([]MessageID, error)
	ListReceivedIDs(account string) ([]MessageID, error)
	// IsSender 判断 account 是否为 id 消息的原始发件人。
	IsSender(account string, id MessageID) (bool, error)

	// ========== 账户台账 ==========

	CreateAccount(account *Account) error
	GetAccount(id string) (*Account, error)

	// ========== 捐赠台账 ==========

	SaveDonation(entry *DonationEntry) error
	GetDonation(account string) (*DonationEntry, error)

	Health() error
	Close() error
}
