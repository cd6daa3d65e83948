package domain

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"
	"strconv"
	"strings"
)

var (
	// ErrAmountInvalid 金额格式无效
	ErrAmountInvalid = errors.New("invalid amount")
	// ErrAmountOverflow 金额超出 128 位无符号整数范围
	ErrAmountOverflow = errors.New("amount overflow")
)

// Amount 表示以最小货币单位计的 128 位无符号金额。
//
// 链上代币金额会超出 uint64 范围，因此内部用高低两个 64 位字保存，
// JSON 编码为十进制字符串，避免 JavaScript 侧的数值精度丢失。
// 零值即金额 0，可直接用 == 比较。
type Amount struct {
	hi, lo uint64
}

// AmountFromUint64 由 uint64 构造金额。
func AmountFromUint64(v uint64) Amount {
	return Amount{lo: v}
}

// ParseAmount 解析十进制字符串表示的金额。
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, ErrAmountInvalid
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return Amount{}, fmt.Errorf("%w: %q", ErrAmountInvalid, s)
	}
	if v.BitLen() > 128 {
		return Amount{}, fmt.Errorf("%w: %q", ErrAmountOverflow, s)
	}
	lo := new(big.Int).And(v, maxUint64).Uint64()
	hi := new(big.Int).Rsh(v, 64).Uint64()
	return Amount{hi: hi, lo: lo}, nil
}

var maxUint64 = new(big.Int).SetUint64(^uint64(0))

// Add 返回两金额之和，溢出 128 位时返回 ErrAmountOverflow。
func (a Amount) Add(b Amount) (Amount, error) {
	lo, carry := bits.Add64(a.lo, b.lo, 0)
	hi, carry := bits.Add64(a.hi, b.hi, carry)
	if carry != 0 {
		return Amount{}, ErrAmountOverflow
	}
	return Amount{hi: hi, lo: lo}, nil
}

// Cmp 比较两金额，返回 -1、0 或 1。
func (a Amount) Cmp(b Amount) int {
	switch {
	case a.hi < b.hi:
		return -1
	case a.hi > b.hi:
		return 1
	case a.lo < b.lo:
		return -1
	case a.lo > b.lo:
		return 1
	}
	return 0
}

// IsZero 判断金额是否为 0。
func (a Amount) IsZero() bool {
	return a.hi == 0 && a.lo == 0
}

// String 返回十进制字符串表示。
func (a Amount) String() string {
	if a.hi == 0 {
		return strconv.FormatUint(a.lo, 10)
	}
	v := new(big.Int).SetUint64(a.hi)
	v.Lsh(v, 64)
	v.Or(v, new(big.Int).SetUint64(a.lo))
	return v.String()
}

// MarshalJSON 实现 json.Marshaler，编码为十进制字符串。
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(a.String())), nil
}

// UnmarshalJSON 实现 json.Unmarshaler，接受十进制字符串。
func (a *Amount) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrAmountInvalid, data)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
