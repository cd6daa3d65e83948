package pebble

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"mailledger/backend/internal/domain"
)

// 键空间布局：四个数据分区加一个计数器分区，前缀互不重叠。
//
//	msg:<id>             -> 消息记录 (JSON)
//	sent:<account>:<id>  -> 发送索引（值为空，键即集合成员）
//	recv:<account>:<id>  -> 接收索引
//	acct:<account>       -> 账户台账 (JSON)
//	don:<account>        -> 捐赠台账 (JSON)
//	meta:next_id         -> 下一个消息 ID（8 字节大端）
//	meta:live            -> 当前存量消息数（8 字节大端）
//
// 消息 ID 在键中固定 20 位十进制零填充，保证字典序即数值序。
const (
	msgPrefix  = "msg:"
	sentPrefix = "sent:"
	recvPrefix = "recv:"
	acctPrefix = "acct:"
	donPrefix  = "don:"

	nextIDKey = "meta:next_id"
	liveKey   = "meta:live"
)

// Store 基于 Pebble 的持久化存储实现。
//
// 复合写入通过 pebble.Batch 原子提交；写锁保证 ID 分配与计数器
// 读改写的串行化。
type Store struct {
	mu sync.Mutex
	db *pebble.DB
}

// NewStore 打开（或创建）指定路径下的 Pebble 数据库。
func NewStore(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}
	return &Store{db: db}, nil
}

// accountRow 账户的持久化形态；与 domain.Account 分离，
// 因为领域结构体对 JSON 隐藏了密钥哈希。
type accountRow struct {
	ID          string    `json:"id"`
	SecretHash  string    `json:"secretHash"`
	UsedStorage uint64    `json:"usedStorage"`
	CreatedAt   time.Time `json:"createdAt"`
}

func msgKey(id domain.MessageID) []byte {
	return []byte(fmt.Sprintf("%s%020d", msgPrefix, uint64(id)))
}

func indexKey(prefix, account string, id domain.MessageID) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefix, account, uint64(id)))
}

// CreateMessage 原子地创建消息记录、更新双向索引并计收存储费。
// 全部写入在同一个 Batch 内提交，部分失败不会留下孤儿记录。
func (s *Store) CreateMessage(msg *domain.Message, sender, receiver string, storageCost uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var account accountRow
	if err := s.getJSON(acctPrefix+sender, &account); err != nil {
		if err == domain.ErrAccountNotFound {
			return domain.ErrAccountNotProvisioned
		}
		return err
	}

	nextID, err := s.getCounter(nextIDKey)
	if err != nil {
		return err
	}
	live, err := s.getCounter(liveKey)
	if err != nil {
		return err
	}

	msg.ID = domain.MessageID(nextID)
	account.UsedStorage += storageCost

	msgData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	acctData, err := json.Marshal(&account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(msgKey(msg.ID), msgData, nil); err != nil {
		return err
	}
	if err := batch.Set(indexKey(sentPrefix, sender, msg.ID), nil, nil); err != nil {
		return err
	}
	if err := batch.Set(indexKey(recvPrefix, receiver, msg.ID), nil, nil); err != nil {
		return err
	}
	if err := batch.Set([]byte(acctPrefix+sender), acctData, nil); err != nil {
		return err
	}
	if err := batch.Set([]byte(nextIDKey), encodeCounter(nextID+1), nil); err != nil {
		return err
	}
	if err := batch.Set([]byte(liveKey), encodeCounter(live+1), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// GetMessage 读取消息记录。
func (s *Store) GetMessage(id domain.MessageID) (*domain.Message, error) {
	data, closer, err := s.db.Get(msgKey(id))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	defer closer.Close()

	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("corrupt message record %d: %w", id, err)
	}
	return &msg, nil
}

// DeleteMessage 删除消息记录并递减存量计数；索引键保留。
func (s *Store) DeleteMessage(id domain.MessageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := msgKey(id)
	_, closer, err := s.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return domain.ErrMessageNotFound
		}
		return err
	}
	closer.Close()

	live, err := s.getCounter(liveKey)
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Delete(key, nil); err != nil {
		return err
	}
	if err := batch.Set([]byte(liveKey), encodeCounter(live-1), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// MessageStats 返回消息全局计数。
func (s *Store) MessageStats() (*domain.MessageStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created, err := s.getCounter(nextIDKey)
	if err != nil {
		return nil, err
	}
	live, err := s.getCounter(liveKey)
	if err != nil {
		return nil, err
	}
	return &domain.MessageStats{
		Created: created,
		Live:    live,
		Deleted: created - live,
	}, nil
}

// ListSentIDs 返回账户发送的消息 ID 列表（ID 升序）。
func (s *Store) ListSentIDs(account string) ([]domain.MessageID, error) {
	return s.scanIndex(sentPrefix, account)
}

// ListReceivedIDs 返回账户接收的消息 ID 列表（ID 升序）。
func (s *Store) ListReceivedIDs(account string) ([]domain.MessageID, error) {
	return s.scanIndex(recvPrefix, account)
}

// scanIndex 遍历某账户的索引分区，键的字典序保证结果按 ID 升序。
func (s *Store) scanIndex(prefix, account string) ([]domain.MessageID, error) {
	keyPrefix := []byte(prefix + account + ":")
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: keyPrefix,
		UpperBound: upperBound(keyPrefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var ids []domain.MessageID
	for iter.First(); iter.Valid(); iter.Next() {
		raw := iter.Key()[len(keyPrefix):]
		id, err := strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt index key %q: %w", iter.Key(), err)
		}
		ids = append(ids, domain.MessageID(id))
	}
	return ids, iter.Error()
}

// upperBound 返回 prefix 的字典序上界：最后一个字节加一。
func upperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// IsSender 判断账户是否为指定消息的原始发件人。
func (s *Store) IsSender(account string, id domain.MessageID) (bool, error) {
	_, closer, err := s.db.Get(indexKey(sentPrefix, account, id))
	if err != nil {
		if err == pebble.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	closer.Close()
	return true, nil
}

// CreateAccount 开通账户，已存在时返回 ErrAccountExists。
func (s *Store) CreateAccount(account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := acctPrefix + account.ID
	if err := s.getJSON(key, &accountRow{}); err == nil {
		return domain.ErrAccountExists
	} else if err != domain.ErrAccountNotFound {
		return err
	}

	row := accountRow{
		ID:          account.ID,
		SecretHash:  account.SecretHash,
		UsedStorage: account.UsedStorage,
		CreatedAt:   account.CreatedAt,
	}
	return s.setJSON(key, &row)
}

// GetAccount 读取账户台账。
func (s *Store) GetAccount(id string) (*domain.Account, error) {
	var row accountRow
	if err := s.getJSON(acctPrefix+id, &row); err != nil {
		return nil, err
	}
	return &domain.Account{
		ID:          row.ID,
		SecretHash:  row.SecretHash,
		UsedStorage: row.UsedStorage,
		CreatedAt:   row.CreatedAt,
	}, nil
}

// SaveDonation 写入捐赠台账条目，覆盖同账户的旧条目。
func (s *Store) SaveDonation(entry *domain.DonationEntry) error {
	return s.setJSON(donPrefix+entry.Account, entry)
}

// GetDonation 读取账户最近一次已确认的捐赠。
func (s *Store) GetDonation(account string) (*domain.DonationEntry, error) {
	var entry domain.DonationEntry
	if err := s.getJSON(donPrefix+account, &entry); err != nil {
		if err == domain.ErrAccountNotFound {
			return nil, domain.ErrDonationNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// Health 检查数据库句柄可用性。
func (s *Store) Health() error {
	if s.db == nil {
		return fmt.Errorf("pebble db not opened")
	}
	return nil
}

// Close 关闭数据库。
func (s *Store) Close() error {
	return s.db.Close()
}

// getJSON 读取并反序列化单个键，缺失时返回 ErrAccountNotFound。
func (s *Store) getJSON(key string, out interface{}) error {
	data, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if err == pebble.ErrNotFound {
			return domain.ErrAccountNotFound
		}
		return err
	}
	defer closer.Close()
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("corrupt record %q: %w", key, err)
	}
	return nil
}

func (s *Store) setJSON(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Set([]byte(key), data, pebble.Sync)
}

// getCounter 读取 8 字节大端计数器，缺失视为 0。
func (s *Store) getCounter(key string) (uint64, error) {
	data, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if err == pebble.ErrNotFound {
			return 0, nil
		}
		return 0, err
	}
	defer closer.Close()
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt counter %q", key)
	}
	return binary.BigEndian.Uint64(data), nil
}

func encodeCounter(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
