package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"mailledger/backend/internal/domain"
	"mailledger/backend/internal/service"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	domain.ErrMessageNotFound:       "消息不存在",
	domain.ErrAccountNotFound:       "账户不存在",
	domain.ErrAccountExists:         "账户已存在",
	domain.ErrPermissionDenied:      "仅原始发件人可删除该消息",
	domain.ErrAccountNotProvisioned: "账户尚未开通，请先开通账户",
	domain.ErrDonationNotFound:      "该账户没有已确认的捐赠记录",
	domain.ErrExternalCallFailed:    "外部通知服务调用失败",
	domain.ErrAmountInvalid:         "金额格式无效",
	domain.ErrAmountOverflow:        "金额超出支持范围",
	domain.ErrInvalidAccountID:      "账户标识格式无效",
	domain.ErrAccountIDTooShort:     "账户标识过短",
	domain.ErrAccountIDTooLong:      "账户标识过长",
	domain.ErrTitleEmpty:            "消息标题不能为空",
	domain.ErrTitleTooLong:          "消息标题过长",
	domain.ErrContentTooLong:        "消息正文过长",
	service.ErrInvalidCredentials:   "账户或密钥错误",
}

// 通用错误消息
const (
	MsgInvalidRequest = "请求参数格式错误"
	MsgInvalidID      = "消息 ID 格式无效"
	MsgInternalError  = "服务器内部错误，请稍后重试"
)

// getErrorMessage 获取错误的中文消息
func getErrorMessage(err error) string {
	for sentinel, msg := range errorMessages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	return MsgInternalError
}

// respondError 按错误类别选择 HTTP 状态并返回统一响应。
//
// 可恢复错误（NotFound / PermissionDenied 等）以对应状态码返回；
// 前置条件违例与外部调用失败表示请求整体失败，不做局部恢复。
func respondError(c *gin.Context, err error) {
	msg := getErrorMessage(err)
	switch {
	case errors.Is(err, domain.ErrMessageNotFound),
		errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrDonationNotFound):
		NotFound(c, msg)
	case errors.Is(err, domain.ErrPermissionDenied):
		Forbidden(c, msg)
	case errors.Is(err, domain.ErrAccountExists):
		Conflict(c, msg)
	case errors.Is(err, domain.ErrAccountNotProvisioned):
		// 前置条件违例：请求中止，不产生任何写入
		Error(c, 422, msg)
	case errors.Is(err, domain.ErrExternalCallFailed):
		BadGateway(c, msg)
	case errors.Is(err, service.ErrInvalidCredentials):
		Unauthorized(c, msg)
	case errors.Is(err, domain.ErrAmountInvalid),
		errors.Is(err, domain.ErrAmountOverflow),
		errors.Is(err, domain.ErrInvalidAccountID),
		errors.Is(err, domain.ErrAccountIDTooShort),
		errors.Is(err, domain.ErrAccountIDTooLong),
		errors.Is(err, domain.ErrTitleEmpty),
		errors.Is(err, domain.ErrTitleTooLong),
		errors.Is(err, domain.ErrContentTooLong):
		BadRequest(c, msg)
	default:
		InternalError(c, MsgInternalError)
	}
}
