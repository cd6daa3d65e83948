package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// 保存原始环境变量
	originalEnvs := make(map[string]string)
	envKeys := []string{
		"MAILLEDGER_JWT_SECRET",
		"MAILLEDGER_SERVER_HOST",
		"MAILLEDGER_SERVER_PORT",
		"MAILLEDGER_STORAGE_TYPE",
		"MAILLEDGER_STORAGE_DSN",
		"MAILLEDGER_LEDGER_BYTES_PER_MESSAGE",
		"MAILLEDGER_LEDGER_STORAGE_UNIT_COST",
		"MAILLEDGER_LEDGER_DONATION_ACCOUNT",
		"MAILLEDGER_NOTIFY_URL",
		"MAILLEDGER_NOTIFY_WORKERS",
		"MAILLEDGER_PAYMENT_MODE",
		"MAILLEDGER_PAYMENT_URL",
		"MAILLEDGER_CORS_ALLOWED_ORIGINS",
		"MAILLEDGER_LOG_LEVEL",
		"MAILLEDGER_LOG_DEVELOPMENT",
	}

	for _, key := range envKeys {
		originalEnvs[key] = os.Getenv(key)
	}

	// 测试后恢复环境变量
	defer func() {
		for key, value := range originalEnvs {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	resetEnv := func() {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
		os.Setenv("MAILLEDGER_JWT_SECRET", "test-secret-key-for-development-32-chars-long")
	}

	t.Run("加载默认配置成功", func(t *testing.T) {
		resetEnv()

		cfg, err := Load()
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "memory", cfg.Storage.Type)
		assert.Equal(t, uint64(1024*10), cfg.Ledger.StorageCost)
		assert.Equal(t, "treasury", cfg.Ledger.DonationAccount)
		assert.Equal(t, 4, cfg.Notify.Workers)
		assert.Equal(t, 64, cfg.Notify.QueueSize)
		assert.Equal(t, 10*time.Second, cfg.Notify.Timeout)
		assert.Equal(t, "log", cfg.Payment.Mode)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, 15*time.Minute, cfg.JWT.AccessExpiry)
		assert.Equal(t, 10.0, cfg.RateLimit.RPS)
		assert.Equal(t, 20, cfg.RateLimit.Burst)
	})

	t.Run("环境变量覆盖默认值", func(t *testing.T) {
		resetEnv()
		os.Setenv("MAILLEDGER_SERVER_PORT", "9000")
		os.Setenv("MAILLEDGER_LEDGER_BYTES_PER_MESSAGE", "2048")
		os.Setenv("MAILLEDGER_LEDGER_STORAGE_UNIT_COST", "5")
		os.Setenv("MAILLEDGER_CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, uint64(2048*5), cfg.Ledger.StorageCost)
		assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORS.AllowedOrigins)
	})

	t.Run("拒绝默认JWT密钥", func(t *testing.T) {
		resetEnv()
		os.Unsetenv("MAILLEDGER_JWT_SECRET")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("拒绝过短的JWT密钥", func(t *testing.T) {
		resetEnv()
		os.Setenv("MAILLEDGER_JWT_SECRET", "too-short")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("拒绝未知的存储类型", func(t *testing.T) {
		resetEnv()
		os.Setenv("MAILLEDGER_STORAGE_TYPE", "cassandra")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("SQL存储要求DSN", func(t *testing.T) {
		resetEnv()
		os.Setenv("MAILLEDGER_STORAGE_TYPE", "postgres")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("HTTP支付模式要求URL", func(t *testing.T) {
		resetEnv()
		os.Setenv("MAILLEDGER_PAYMENT_MODE", "http")

		_, err := Load()
		assert.Error(t, err)
	})
}
