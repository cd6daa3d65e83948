package domain

import "errors"

// 业务错误分为两类：可恢复错误（NotFound / PermissionDenied 等）直接返回调用方；
// 违反不变量的错误（未开通账户、协议违例）中止整个请求，不做局部恢复。
var (
	// ErrMessageNotFound 消息不存在（包括已删除的消息）
	ErrMessageNotFound = errors.New("message not found")
	// ErrAccountNotFound 账户不存在
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists 账户已存在
	ErrAccountExists = errors.New("account already exists")
	// ErrPermissionDenied 仅原始发件人可删除自己的消息
	ErrPermissionDenied = errors.New("permission denied")
	// ErrAccountNotProvisioned 向未开通账户计收存储费——前置条件违例，请求整体失败
	ErrAccountNotProvisioned = errors.New("account not provisioned")
	// ErrDonationNotFound 该账户没有已确认的捐赠记录
	ErrDonationNotFound = errors.New("donation not found")
	// ErrExternalCallFailed 外部通知调用失败——回调事务中止，此前的本地写入保留
	ErrExternalCallFailed = errors.New("external call failed")
	// ErrProtocolViolation 异步结果数量或形态异常——程序缺陷，绝不静默忽略
	ErrProtocolViolation = errors.New("protocol violation")
)
