package memory

import (
	"sort"
	"sync"

	"mailledger/backend/internal/domain"
)

// Store 使用内存保存消息、索引与台账数据，主要用于开发验证与测试。
//
// 四个分区共用一把读写锁，CreateMessage 在单次持锁期间完成全部写入，
// 天然满足"记录与索引在同一逻辑事务内更新"的约束。
type Store struct {
	mu        sync.RWMutex
	messages  map[domain.MessageID]*domain.Message
	sent      map[string]map[domain.MessageID]struct{} // 账户 -> 发送消息 ID 集合
	received  map[string]map[domain.MessageID]struct{} // 账户 -> 接收消息 ID 集合
	accounts  map[string]*domain.Account
	donations map[string]*domain.DonationEntry

	nextID uint64 // 单调递增，已删除的 ID 不复用
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		messages:  make(map[domain.MessageID]*domain.Message),
		sent:      make(map[string]map[domain.MessageID]struct{}),
		received:  make(map[string]map[domain.MessageID]struct{}),
		accounts:  make(map[string]*domain.Account),
		donations: make(map[string]*domain.DonationEntry),
	}
}

// CreateMessage 原子地创建消息记录、更新双向索引并计收存储费。
func (s *Store) CreateMessage(msg *domain.Message, sender, receiver string, storageCost uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 前置条件：发件人账户必须已开通，校验通过前不产生任何写入
	account, ok := s.accounts[sender]
	if !ok {
		return domain.ErrAccountNotProvisioned
	}

	msg.ID = domain.MessageID(s.nextID)
	s.nextID++

	stored := *msg
	s.messages[stored.ID] = &stored

	addToIndex(s.sent, sender, stored.ID)
	addToIndex(s.received, receiver, stored.ID)

	account.UsedStorage += storageCost
	return nil
}

// addToIndex 幂等地向索引集合插入消息 ID，集合不存在时惰性创建。
func addToIndex(index map[string]map[domain.MessageID]struct{}, account string, id domain.MessageID) {
	set, ok := index[account]
	if !ok {
		set = make(map[domain.MessageID]struct{})
		index[account] = set
	}
	set[id] = struct{}{}
}

// GetMessage 读取消息记录。
func (s *Store) GetMessage(id domain.MessageID) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	copied := *msg
	return &copied, nil
}

// DeleteMessage 删除消息记录；索引中的 ID 保留，由读取方跳过。
func (s *Store) DeleteMessage(id domain.MessageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[id]; !ok {
		return domain.ErrMessageNotFound
	}
	delete(s.messages, id)
	return nil
}

// MessageStats 返回消息全局计数。
func (s *Store) MessageStats() (*domain.MessageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	created := s.nextID
	live := uint64(len(s.messages))
	return &domain.MessageStats{
		Created: created,
		Live:    live,
		Deleted: created - live,
	}, nil
}

// ListSentIDs 返回账户发送的消息 ID 列表，未知账户返回空列表。
func (s *Store) ListSentIDs(account string) ([]domain.MessageID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedIDs(s.sent[account]), nil
}

// ListReceivedIDs 返回账户接收的消息 ID 列表，未知账户返回空列表。
func (s *Store) ListReceivedIDs(account string) ([]domain.MessageID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedIDs(s.received[account]), nil
}

// sortedIDs 将集合转为按 ID 升序排列的切片，即创建时间顺序。
func sortedIDs(set map[domain.MessageID]struct{}) []domain.MessageID {
	ids := make([]domain.MessageID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IsSender 判断账户是否为指定消息的原始发件人。
func (s *Store) IsSender(account string, id domain.MessageID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.sent[account]
	if !ok {
		return false, nil
	}
	_, ok = set[id]
	return ok, nil
}

// CreateAccount 开通账户，已存在时返回 ErrAccountExists。
func (s *Store) CreateAccount(account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.ID]; ok {
		return domain.ErrAccountExists
	}
	copied := *account
	s.accounts[account.ID] = &copied
	return nil
}

// GetAccount 读取账户台账。
func (s *Store) GetAccount(id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

// SaveDonation 写入捐赠台账条目，覆盖同账户的旧条目。
func (s *Store) SaveDonation(entry *domain.DonationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *entry
	s.donations[entry.Account] = &copied
	return nil
}

// GetDonation 读取账户最近一次已确认的捐赠。
func (s *Store) GetDonation(account string) (*domain.DonationEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.donations[account]
	if !ok {
		return nil, domain.ErrDonationNotFound
	}
	copied := *entry
	return &copied, nil
}

// Health 内存存储恒为健康。
func (s *Store) Health() error { return nil }

// Close 实现 domain.Store 接口，内存存储无需清理。
func (s *Store) Close() error { return nil }
