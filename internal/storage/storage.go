package storage

import (
	"mailledger/backend/internal/domain"
)

// Store 是各后端共同实现的聚合存储接口。
type Store = domain.Store

// MessageRepository 定义消息记录与收发索引的存取操作。
type MessageRepository interface {
	CreateMessage(msg *domain.Message, sender, receiver string, storageCost uint64) error
	GetMessage(id domain.MessageID) (*domain.Message, error)
	DeleteMessage(id domain.MessageID) error
	ListSentIDs(account string) ([]domain.MessageID, error)
	ListReceivedIDs(account string) ([]domain.MessageID, error)
	IsSender(account string, id domain.MessageID) (bool, error)
	MessageStats() (*domain.MessageStats, error)
}

// AccountRepository 定义账户台账的存取操作。
type AccountRepository interface {
	CreateAccount(account *domain.Account) error
	GetAccount(id string) (*domain.Account, error)
}

// DonationRepository 定义捐赠台账的存取操作。
type DonationRepository interface {
	SaveDonation(entry *domain.DonationEntry) error
	GetDonation(account string) (*domain.DonationEntry, error)
}
