package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"mailledger/backend/internal/domain"
)

var (
	// ErrInvalidCredentials 账户或密钥错误
	ErrInvalidCredentials = errors.New("invalid account credentials")
)

// AccountService 封装账户开通与认证。
//
// 存储计费要求账户先开通后使用：向未开通账户计费是前置条件违例，
// 发送请求整体失败，因此开通是调用方使用本服务的第一步。
type AccountService struct {
	store domain.Store
	log   *zap.Logger
	clock func() time.Time
}

// NewAccountService 创建账户业务服务。
func NewAccountService(store domain.Store, log *zap.Logger) *AccountService {
	return &AccountService{
		store: store,
		log:   log,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// ProvisionResult 开通结果；Secret 仅在开通时返回一次，之后只保存哈希。
type ProvisionResult struct {
	Account *domain.Account
	Secret  string
}

// Provision 开通账户并生成账户密钥。
func (s *AccountService) Provision(id string) (*ProvisionResult, error) {
	if err := domain.ValidateAccountID(id); err != nil {
		return nil, err
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash account secret: %w", err)
	}

	account := &domain.Account{
		ID:         id,
		SecretHash: string(hash),
		CreatedAt:  s.clock(),
	}
	if err := s.store.CreateAccount(account); err != nil {
		return nil, err
	}

	s.log.Info("account provisioned", zap.String("account", id))
	return &ProvisionResult{Account: account, Secret: secret}, nil
}

// Authenticate 校验账户密钥，成功返回账户。
func (s *AccountService) Authenticate(id, secret string) (*domain.Account, error) {
	account, err := s.store.GetAccount(id)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.SecretHash), []byte(secret)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// Get 读取账户台账。
func (s *AccountService) Get(id string) (*domain.Account, error) {
	return s.store.GetAccount(id)
}

// generateSecret 生成 32 字节随机密钥的十六进制表示。
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
