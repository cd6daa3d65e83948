package httptransport

import (
	"github.com/gin-gonic/gin"

	"mailledger/backend/internal/auth/jwt"
	"mailledger/backend/internal/service"
)

// AccountHandler 账户开通与认证的 HTTP 处理逻辑。
type AccountHandler struct {
	accounts *service.AccountService
	jwt      *jwt.Manager
}

// NewAccountHandler 创建账户处理器。
func NewAccountHandler(accounts *service.AccountService, jwtManager *jwt.Manager) *AccountHandler {
	return &AccountHandler{accounts: accounts, jwt: jwtManager}
}

type provisionRequest struct {
	Account string `json:"account" binding:"required"`
}

// Provision 处理 POST /v1/accounts
//
// 开通账户并返回一次性密钥，密钥仅在此响应中出现一次。
func (h *AccountHandler) Provision(c *gin.Context) {
	var req provisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	result, err := h.accounts.Provision(req.Account)
	if err != nil {
		respondError(c, err)
		return
	}

	tokens, err := h.jwt.GenerateTokenPair(result.Account.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	Created(c, gin.H{
		"account": result.Account,
		"secret":  result.Secret,
		"tokens":  tokens,
	})
}

type tokenRequest struct {
	Account string `json:"account" binding:"required"`
	Secret  string `json:"secret" binding:"required"`
}

// Token 处理 POST /v1/auth/token
func (h *AccountHandler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	account, err := h.accounts.Authenticate(req.Account, req.Secret)
	if err != nil {
		respondError(c, err)
		return
	}

	tokens, err := h.jwt.GenerateTokenPair(account.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, tokens)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh 处理 POST /v1/auth/refresh
func (h *AccountHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	tokens, err := h.jwt.Refresh(req.RefreshToken)
	if err != nil {
		Unauthorized(c, getErrorMessage(err))
		return
	}
	Success(c, tokens)
}

// GetAccount 处理 GET /v1/accounts/:account
func (h *AccountHandler) GetAccount(c *gin.Context) {
	account, err := h.accounts.Get(c.Param("account"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, account)
}
