package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Amount 金额类型，入库为最小货币单位（分）的整数，
// 仅在边界（JSON、展示）转换为两位小数。
type Amount int64

// AmountFromDecimal 从 decimal 金额（元）转换
func AmountFromDecimal(d decimal.Decimal) Amount {
	return Amount(d.Round(2).Shift(2).IntPart())
}

// Decimal 转换为 decimal 金额（元）
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -2)
}

// MarshalJSON 统一输出 2 位小数的字符串
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Decimal().StringFixed(2))
}

// UnmarshalJSON 解析金额（字符串或数字，单位元）
func (a *Amount) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		*a = AmountFromDecimal(d)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*a = AmountFromDecimal(decimal.NewFromFloat(f))
	return nil
}

// String 返回 2 位小数格式
func (a Amount) String() string {
	return a.Decimal().StringFixed(2)
}
