package units

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "bad big int literal %q", s)
	return v
}

func TestToDisplay(t *testing.T) {
	tests := []struct {
		raw      string
		decimals uint8
		want     string
	}{
		{"0", 18, "0.000000000000000000"},
		{"1", 18, "0.000000000000000001"},
		{"1000000000000000000", 18, "1.000000000000000000"},
		{"1250500000", 6, "1250.500000"},
		{"42", 0, "42"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ToDisplay(mustBig(t, tt.raw), tt.decimals))
	}
	assert.Equal(t, "0.00", ToDisplay(nil, 2))
}

func TestToRaw(t *testing.T) {
	v, err := ToRaw("1.0", 18)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", v.String())

	v, err = ToRaw("  0.5 ", 6)
	require.NoError(t, err)
	assert.Equal(t, "500000", v.String())

	v, err = ToRaw("1.500", 1)
	require.NoError(t, err)
	assert.Equal(t, "15", v.String())

	for _, bad := range []string{"", "-1", "abc", "1e18", "0.0000001"} {
		_, err := ToRaw(bad, 6)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(40), nil)

	for d := uint8(0); d <= 18; d++ {
		samples := []*big.Int{big.NewInt(0), big.NewInt(1), new(big.Int).Set(limit)}
		for i := 0; i < 50; i++ {
			samples = append(samples, new(big.Int).Rand(rng, limit))
		}

		for _, r := range samples {
			back, err := ToRaw(ToDisplay(r, d), d)
			require.NoError(t, err)
			assert.Equal(t, 0, r.Cmp(back), "decimals=%d raw=%s", d, r)
		}
	}
}

func TestFormatTrim(t *testing.T) {
	assert.Equal(t, "1.2345", FormatTrim(mustBig(t, "1234500000000000000"), 18, 6))
	assert.Equal(t, "1", FormatTrim(mustBig(t, "1000000000000000000"), 18, 6))
	assert.Equal(t, "0.000000000000000001", FormatTrim(big.NewInt(1), 18, 18))
	assert.Equal(t, "0", FormatTrim(nil, 18, 4))
	assert.Equal(t, "1.23", FormatTrim(big.NewInt(1239), 3, 2))
}

func TestMinimumOutput(t *testing.T) {
	quoted := mustBig(t, "2000000000000000000")

	got, err := MinimumOutput(quoted, 50)
	require.NoError(t, err)
	assert.Equal(t, "1990000000000000000", got.String())

	got, err = MinimumOutput(quoted, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cmp(quoted))

	got, err = MinimumOutput(big.NewInt(999), 1)
	require.NoError(t, err)
	assert.Equal(t, "998", got.String(), "floor, not round")

	_, err = MinimumOutput(quoted, 10_001)
	assert.Error(t, err)
}

func TestMinimumOutputMonotonic(t *testing.T) {
	quoted := mustBig(t, "123456789012345678901")
	prev, err := MinimumOutput(quoted, 0)
	require.NoError(t, err)

	for bps := uint32(1); bps <= 10_000; bps += 37 {
		cur, err := MinimumOutput(quoted, bps)
		require.NoError(t, err)
		assert.LessOrEqual(t, cur.Cmp(prev), 0, "bps=%d", bps)
		prev = cur
	}
}
