package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	jwtpkg "mailledger/backend/internal/auth/jwt"
	"mailledger/backend/internal/config"
	"mailledger/backend/internal/monitoring"
	"mailledger/backend/internal/notify"
	"mailledger/backend/internal/payment"
	"mailledger/backend/internal/pool"
	"mailledger/backend/internal/service"
	"mailledger/backend/internal/storage/memory"
)

// Prometheus collectors register globally, one instance per test binary.
var serverMetrics = monitoring.NewMetrics()

// failingNotifier simulates an unreachable external notify service.
type failingNotifier struct{ fail bool }

func (n *failingNotifier) Notify(context.Context, notify.Payload) error {
	if n.fail {
		return errors.New("notify endpoint down")
	}
	return nil
}

type testServer struct {
	router   *gin.Engine
	notifier *failingNotifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	log := zap.NewNop()

	workers := pool.NewWorkerPool(2, 8)
	ctx, cancel := context.WithCancel(context.Background())
	workers.Start(ctx)
	t.Cleanup(func() {
		cancel()
		workers.Stop()
	})

	notifier := &failingNotifier{}
	orch := notify.NewOrchestrator(notifier, store, workers, nil, log)
	mailService := service.NewMailService(store, orch, payment.NewLogTransferrer(log), serverMetrics, 100, "treasury", log)
	accountService := service.NewAccountService(store, log)
	donationService := service.NewDonationService(mailService, store, log)
	jwtManager := jwtpkg.NewManager("test-secret-key-at-least-32-characters", "mailledger", 15*time.Minute, 24*time.Hour)

	cfg := &config.Config{
		CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
		RateLimit: config.RateLimitConfig{RPS: 1000, Burst: 1000},
	}

	router := NewRouter(RouterDependencies{
		Config:          cfg,
		MailService:     mailService,
		AccountService:  accountService,
		DonationService: donationService,
		JWTManager:      jwtManager,
		Metrics:         serverMetrics,
		Logger:          log,
	})

	return &testServer{router: router, notifier: notifier}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// provision creates an account and returns an access token for it.
func (s *testServer) provision(t *testing.T, account string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/accounts", "", gin.H{"account": account})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Data struct {
			Tokens struct {
				AccessToken string `json:"accessToken"`
			} `json:"tokens"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Tokens.AccessToken)
	return resp.Data.Tokens.AccessToken
}

func TestRouter_ProvisionAccount(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/v1/accounts", "", gin.H{"account": "alice"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data struct {
			Secret  string `json:"secret"`
			Account struct {
				ID string `json:"id"`
			} `json:"account"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.Data.Account.ID)
	assert.Len(t, resp.Data.Secret, 64)

	t.Run("duplicate provisioning returns 409", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/v1/accounts", "", gin.H{"account": "alice"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("invalid id returns 400", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/v1/accounts", "", gin.H{"account": "Not Valid"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRouter_AuthRequired(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/v1/messages", "", gin.H{"receiver": "bob", "title": "hi"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodGet, "/v1/stats/messages", "bogus-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_SendAndReadMessages(t *testing.T) {
	srv := newTestServer(t)
	aliceToken := srv.provision(t, "alice")
	bobToken := srv.provision(t, "bob")

	// alice -> bob
	rec := srv.do(t, http.MethodPost, "/v1/messages", aliceToken, gin.H{
		"receiver": "bob",
		"title":    "hello",
		"content":  "first message",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sendResp struct {
		Data struct {
			ID uint64 `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sendResp))

	t.Run("get message", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, fmt.Sprintf("/v1/messages/%d", sendResp.Data.ID), bobToken, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "hello")
	})

	t.Run("malformed id returns 400", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/v1/messages/abc", bobToken, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("lists and counts", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/v1/accounts/alice/sent", aliceToken, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "hello")

		rec = srv.do(t, http.MethodGet, "/v1/accounts/bob/received/count", bobToken, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"count":1`)
	})

	t.Run("stats", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/v1/stats/messages", aliceToken, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"created":1`)
	})

	t.Run("receiver cannot delete", func(t *testing.T) {
		rec := srv.do(t, http.MethodDelete, fmt.Sprintf("/v1/messages/%d", sendResp.Data.ID), bobToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("sender deletes own message", func(t *testing.T) {
		rec := srv.do(t, http.MethodDelete, fmt.Sprintf("/v1/messages/%d", sendResp.Data.ID), aliceToken, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = srv.do(t, http.MethodGet, fmt.Sprintf("/v1/messages/%d", sendResp.Data.ID), aliceToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRouter_SendToUnknownReceiverStillRecords(t *testing.T) {
	srv := newTestServer(t)
	aliceToken := srv.provision(t, "alice")

	// Receiver provisioning is not required, only the sender pays storage
	rec := srv.do(t, http.MethodPost, "/v1/messages", aliceToken, gin.H{
		"receiver": "charlie",
		"title":    "hi",
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestRouter_Donations(t *testing.T) {
	srv := newTestServer(t)
	aliceToken := srv.provision(t, "alice")

	t.Run("success commits the donation", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/v1/donations", aliceToken, gin.H{
			"receiver": "bob",
			"title":    "thanks",
			"amount":   "18446744073709551616",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = srv.do(t, http.MethodGet, "/v1/donations/alice", aliceToken, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "18446744073709551616")
	})

	t.Run("zero amount returns 400", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/v1/donations", aliceToken, gin.H{
			"receiver": "bob",
			"title":    "thanks",
			"amount":   "0",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("external failure returns 502 without ledger entry", func(t *testing.T) {
		srv := newTestServer(t)
		token := srv.provision(t, "carol")
		srv.notifier.fail = true

		rec := srv.do(t, http.MethodPost, "/v1/donations", token, gin.H{
			"receiver": "bob",
			"title":    "thanks",
			"amount":   "500",
		})
		assert.Equal(t, http.StatusBadGateway, rec.Code)

		rec = srv.do(t, http.MethodGet, "/v1/donations/carol", token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRouter_TokenEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/v1/accounts", "", gin.H{"account": "alice"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data struct {
			Secret string `json:"secret"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	t.Run("valid credentials return a token pair", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/v1/auth/token", "", gin.H{
			"account": "alice",
			"secret":  resp.Data.Secret,
		})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "accessToken")
	})

	t.Run("wrong secret returns 401", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/v1/auth/token", "", gin.H{
			"account": "alice",
			"secret":  "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
