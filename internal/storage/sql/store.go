package sql

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver (pgx)
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"mailledger/backend/internal/domain"
)

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）。
//
// 复合写入通过数据库事务完成，计数器行用 SELECT ... FOR UPDATE
// 串行化 ID 分配。
type Store struct {
	db         *gorm.DB
	driverName string // "mysql" or "postgres"
}

// NewStore 创建 SQL 数据库存储。
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	if driverName != "mysql" && driverName != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	// pgx 以 database/sql 驱动方式注册为 "pgx"
	sqlDriver := driverName
	if driverName == "postgres" {
		sqlDriver = "pgx"
	}

	sqlDB, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var gormDB *gorm.DB
	if driverName == "mysql" {
		gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: sqlDB}), gormConfig)
	} else {
		gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig)
	}
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	store := &Store{
		db:         gormDB,
		driverName: driverName,
	}

	if err := store.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate 自动创建/升级表结构。
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&messageRow{},
		&sentIndexRow{},
		&receivedIndexRow{},
		&accountRow{},
		&donationRow{},
		&counterRow{},
	)
}

const nextIDCounter = "next_message_id"

// CreateMessage 在单个事务内创建消息记录、更新双向索引并计收存储费。
func (s *Store) CreateMessage(msg *domain.Message, sender, receiver string, storageCost uint64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		// 锁住计数器行，串行化 ID 分配
		var counter counterRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name = ?", nextIDCounter).First(&counter).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			counter = counterRow{Name: nextIDCounter, Value: 0}
			if err := tx.Create(&counter).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		var account accountRow
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", sender).First(&account).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrAccountNotProvisioned
		} else if err != nil {
			return err
		}

		msg.ID = domain.MessageID(counter.Value)

		row := messageRow{
			ID:        counter.Value,
			Title:     msg.Title,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
			Amount:    amountToString(msg.Amount),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		// 索引插入幂等：主键冲突视为已存在
		sent := sentIndexRow{Account: sender, MessageID: row.ID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&sent).Error; err != nil {
			return err
		}
		received := receivedIndexRow{Account: receiver, MessageID: row.ID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&received).Error; err != nil {
			return err
		}

		if err := tx.Model(&accountRow{}).Where("id = ?", sender).
			Update("used_storage", gorm.Expr("used_storage + ?", storageCost)).Error; err != nil {
			return err
		}

		return tx.Model(&counterRow{}).Where("name = ?", nextIDCounter).
			Update("value", counter.Value+1).Error
	})
}

// GetMessage 读取消息记录。
func (s *Store) GetMessage(id domain.MessageID) (*domain.Message, error) {
	var row messageRow
	err := s.db.Where("id = ?", uint64(id)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrMessageNotFound
	} else if err != nil {
		return nil, err
	}
	return row.toDomain()
}

// DeleteMessage 删除消息记录；索引行保留。
func (s *Store) DeleteMessage(id domain.MessageID) error {
	result := s.db.Where("id = ?", uint64(id)).Delete(&messageRow{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

// MessageStats 返回消息全局计数。
func (s *Store) MessageStats() (*domain.MessageStats, error) {
	var counter counterRow
	err := s.db.Where("name = ?", nextIDCounter).First(&counter).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var live int64
	if err := s.db.Model(&messageRow{}).Count(&live).Error; err != nil {
		return nil, err
	}

	return &domain.MessageStats{
		Created: counter.Value,
		Live:    uint64(live),
		Deleted: counter.Value - uint64(live),
	}, nil
}

// ListSentIDs 返回账户发送的消息 ID 列表（ID 升序）。
func (s *Store) ListSentIDs(account string) ([]domain.MessageID, error) {
	return s.listIndex(&sentIndexRow{}, account)
}

// ListReceivedIDs 返回账户接收的消息 ID 列表（ID 升序）。
func (s *Store) ListReceivedIDs(account string) ([]domain.MessageID, error) {
	return s.listIndex(&receivedIndexRow{}, account)
}

func (s *Store) listIndex(model interface{}, account string) ([]domain.MessageID, error) {
	var raw []uint64
	err := s.db.Model(model).Where("account = ?", account).
		Order("message_id").Pluck("message_id", &raw).Error
	if err != nil {
		return nil, err
	}
	ids := make([]domain.MessageID, len(raw))
	for i, v := range raw {
		ids[i] = domain.MessageID(v)
	}
	return ids, nil
}

// IsSender 判断账户是否为指定消息的原始发件人。
func (s *Store) IsSender(account string, id domain.MessageID) (bool, error) {
	var count int64
	err := s.db.Model(&sentIndexRow{}).
		Where("account = ? AND message_id = ?", account, uint64(id)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateAccount 开通账户，已存在时返回 ErrAccountExists。
func (s *Store) CreateAccount(account *domain.Account) error {
	row := accountRow{
		ID:          account.ID,
		SecretHash:  account.SecretHash,
		UsedStorage: account.UsedStorage,
		CreatedAt:   account.CreatedAt,
	}
	result := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrAccountExists
	}
	return nil
}

// GetAccount 读取账户台账。
func (s *Store) GetAccount(id string) (*domain.Account, error) {
	var row accountRow
	err := s.db.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAccountNotFound
	} else if err != nil {
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
	row := donationRow{
		Account:     entry.Account,
		Amount:      entry.Amount.String(),
		ConfirmedAt: entry.ConfirmedAt,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "confirmed_at"}),
	}).Create(&row).Error
}

// GetDonation 读取账户最近一次已确认的捐赠。
func (s *Store) GetDonation(account string) (*domain.DonationEntry, error) {
	var row donationRow
	err := s.db.Where("account = ?", account).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrDonationNotFound
	} else if err != nil {
		return nil, err
	}
	amount, err := domain.ParseAmount(row.Amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt donation amount for %s: %w", account, err)
	}
	return &domain.DonationEntry{
		Account:     row.Account,
		Amount:      amount,
		ConfirmedAt: row.ConfirmedAt,
	}, nil
}

// Health 检查数据库连接。
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func amountToString(a *domain.Amount) *string {
	if a == nil {
		return nil
	}
	s := a.String()
	return &s
}
