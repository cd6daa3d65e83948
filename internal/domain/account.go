package domain

import "time"

// Account 表示一个已开通的账户及其存储计费元数据。
//
// UsedStorage 为累计存储费用（最小货币单位），每次发送消息时累加，
// 永不减少——删除消息不退费。
type Account struct {
	ID          string    `json:"id"`
	SecretHash  string    `json:"-"` // bcrypt 哈希后的账户密钥
	UsedStorage uint64    `json:"usedStorage"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DonationEntry 捐赠台账条目：某账户最近一次已确认的捐赠金额。
//
// 仅在外部通知调用成功回调后写入，调用失败或未决时绝不写入。
type DonationEntry struct {
	Account     string    `json:"account"`
	Amount      Amount    `json:"amount"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}
