package fixedpoint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToE6(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"1", 1_000_000},
		{"69000", 69_000_000_000},
		{"69000.000001", 69_000_000_001},
		{"0.5", 500_000},
		{".5", 500_000},
		{"3.14159", 3_141_590},
		{"+2", 2_000_000},
		{"-1.25", -1_250_000},
		{" 42 ", 42_000_000},
	}
	for _, c := range cases {
		got, err := ToE6(c.in)
		assert.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestToE6_Rounding(t *testing.T) {
	// 第 7 位小数四舍五入
	got, err := ToE6("1.0000005")
	assert.NoError(t, err)
	assert.Equal(t, int64(1_000_001), got)

	got, err = ToE6("1.0000004")
	assert.NoError(t, err)
	assert.Equal(t, int64(1_000_000), got)

	// 超过 7 位直接截断后再舍入
	got, err = ToE6("1.00000049999")
	assert.NoError(t, err)
	assert.Equal(t, int64(1_000_000), got)
}

func TestToE6_Invalid(t *testing.T) {
	for _, in := range []string{"", ".", "-", "abc", "1.2.3", "1e5"} {
		_, err := ToE6(in)
		assert.Error(t, err, in)
	}
}

func TestToE6_Overflow(t *testing.T) {
	// int64 定点上界 9223372036854.775807
	got, err := ToE6("9223372036854.775807")
	assert.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got)

	for _, in := range []string{"9223372036854.775808", "9223372036855", "99999999999999999"} {
		_, err := ToE6(in)
		assert.Error(t, err, in)
	}
}

func TestFromE6(t *testing.T) {
	assert.Equal(t, "0", FromE6(0))
	assert.Equal(t, "69000", FromE6(69_000_000_000))
	assert.Equal(t, "69000.000001", FromE6(69_000_000_001))
	assert.Equal(t, "0.5", FromE6(500_000))
	assert.Equal(t, "-1.25", FromE6(-1_250_000))
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []string{"0.000001", "123456.789", "99999.999999"} {
		v, err := ToE6(s)
		assert.NoError(t, err)
		assert.Equal(t, s, FromE6(v))
	}
}

func TestToE6Float(t *testing.T) {
	got, err := ToE6Float(69000.5)
	assert.NoError(t, err)
	assert.Equal(t, int64(69_000_500_000), got)
}
