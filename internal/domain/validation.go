package domain

import (
	"errors"
	"regexp"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidAccountID  = errors.New("invalid account id format")
	ErrAccountIDTooShort = errors.New("account id too short (min 2 chars)")
	ErrAccountIDTooLong  = errors.New("account id too long (max 64 chars)")
	ErrTitleEmpty        = errors.New("title must not be empty")
	ErrTitleTooLong      = errors.New("title too long (max 500 chars)")
	ErrContentTooLong    = errors.New("content too long (max 64KB)")
)

// 验证常量
const (
	MinAccountIDLength = 2
	MaxAccountIDLength = 64
	MaxTitleLength     = 500
	MaxContentLength   = 64 * 1024
)

// 账户 ID 验证：小写字母数字开头结尾，中间允许 . _ - 分隔
var accountIDRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9._-]*[a-z0-9])?$`)

// ValidateAccountID 验证账户标识格式。
func ValidateAccountID(id string) error {
	id = strings.TrimSpace(id)
	if len(id) < MinAccountIDLength {
		return ErrAccountIDTooShort
	}
	if len(id) > MaxAccountIDLength {
		return ErrAccountIDTooLong
	}
	if !accountIDRegex.MatchString(id) {
		return ErrInvalidAccountID
	}
	return nil
}

// ValidateMessageContent 验证消息标题与正文长度。
func ValidateMessageContent(title, content string) error {
	if strings.TrimSpace(title) == "" {
		return ErrTitleEmpty
	}
	if len(title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if len(content) > MaxContentLength {
		return ErrContentTooLong
	}
	return nil
}
