// Package fixedpoint 十进制价格与 E6 定点整数互转
// E6：实际价格 × 1,000,000，价格比较全部走整数，避免浮点误差
package fixedpoint

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Scale E6 定点倍率
const Scale int64 = 1_000_000

// ToE6 将十进制字符串转为 E6 定点整数
// 小数部分补齐到 7 位，第 7 位四舍五入进 6 位，符号最后应用
func ToE6(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty price")
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" || s == "." {
		return 0, fmt.Errorf("invalid price %q", s)
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart = s[:i]
		fracPart = s[i+1:]
		if strings.IndexByte(fracPart, '.') >= 0 {
			return 0, fmt.Errorf("invalid price %q", s)
		}
	}
	if intPart == "" {
		intPart = "0"
	}

	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", s, err)
	}

	// 小数部分补齐到 7 位
	if len(fracPart) < 7 {
		fracPart += strings.Repeat("0", 7-len(fracPart))
	} else {
		fracPart = fracPart[:7]
	}

	frac7, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", s, err)
	}

	// 第 7 位四舍五入
	frac := frac7 / 10
	if frac7%10 >= 5 {
		frac++
	}

	// 整数部分过大时 whole*Scale 会溢出 int64
	if whole > math.MaxInt64/Scale || (whole == math.MaxInt64/Scale && frac > math.MaxInt64%Scale) {
		return 0, fmt.Errorf("price %q overflows fixed-point range", s)
	}

	v := whole*Scale + frac
	if neg {
		v = -v
	}
	return v, nil
}

// FromE6 将 E6 定点整数格式化回十进制字符串（去掉尾随零）
func FromE6(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}

	whole := v / Scale
	frac := v % Scale

	out := strconv.FormatInt(whole, 10)
	if frac > 0 {
		fs := fmt.Sprintf("%06d", frac)
		fs = strings.TrimRight(fs, "0")
		out += "." + fs
	}
	if neg {
		out = "-" + out
	}
	return out
}

// ToE6Float 浮点输入版本（行情源偶尔给数值类型）
func ToE6Float(f float64) (int64, error) {
	return ToE6(strconv.FormatFloat(f, 'f', -1, 64))
}
