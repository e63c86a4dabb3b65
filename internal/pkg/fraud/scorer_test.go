package fraud

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		score int
		tier  string
	}{
		{0, TierLow},
		{39, TierLow},
		{40, TierMedium},
		{69, TierMedium},
		{70, TierHigh},
		{100, TierHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.tier, TierFor(tt.score), "score %d", tt.score)
	}
}

func TestEvaluateVelocity(t *testing.T) {
	tests := []struct {
		name   string
		counts VelocityCounts
		score  int
	}{
		{"quiet customer", VelocityCounts{}, 0},
		{"three in the last hour", VelocityCounts{LastHour: 3}, 8},
		{"five in the last hour", VelocityCounts{LastHour: 5}, 15},
		{"ten in the last hour", VelocityCounts{LastHour: 10}, 25},
		{"busy day", VelocityCounts{LastDay: 15}, 8},
		{"very busy day", VelocityCounts{LastDay: 30}, 15},
		{"busy week", VelocityCounts{LastWeek: 80}, 10},
		{"all windows hot, capped", VelocityCounts{LastHour: 20, LastDay: 40, LastWeek: 100}, velocityCap},
	}

	in := Input{Amount: amt("42.13"), Currency: "USD", DeviceFingerprint: "dev_1"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Evaluate(in, tt.counts, decimal.Zero, 0, false)
			assert.Equal(t, tt.score, result.Score)
		})
	}
}

func TestEvaluateAmountRatio(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		avg     string
		samples int64
		score   int
	}{
		{"no history", "500.13", "0", 0, 0},
		{"thin history is no baseline", "500.13", "10.00", 2, 0},
		{"near the average", "25.13", "10.00", 5, 0},
		{"3x average", "30.13", "10.00", 5, 10},
		{"5x average", "50.13", "10.00", 5, 20},
		{"10x average", "100.13", "10.00", 5, amountCap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Input{Amount: amt(tt.amount), Currency: "USD", DeviceFingerprint: "dev_1"}
			result := Evaluate(in, VelocityCounts{}, amt(tt.avg), tt.samples, false)
			assert.Equal(t, tt.score, result.Score)
		})
	}
}

func TestEvaluateAmountPattern(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		score  int
	}{
		{"one cent probe", "0.01", 15},
		{"one dollar probe", "1.00", 15},
		{"repdigit probe", "1.11", 15},
		{"sequence probe", "123.45", 15},
		{"max probe", "9999.99", 15},
		{"large round figure", "500.00", 10},
		{"larger round figure", "1200.00", 10},
		{"small round figure is fine", "100.00", 0},
		{"ordinary amount", "137.82", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Input{Amount: amt(tt.amount), Currency: "USD", DeviceFingerprint: "dev_1"}
			result := Evaluate(in, VelocityCounts{}, decimal.Zero, 0, false)
			assert.Equal(t, tt.score, result.Score)
		})
	}
}

func TestEvaluateReputation(t *testing.T) {
	t.Run("blocked ip", func(t *testing.T) {
		in := Input{Amount: amt("42.13"), IPAddress: "203.0.113.9", DeviceFingerprint: "dev_1"}
		result := Evaluate(in, VelocityCounts{}, decimal.Zero, 0, true)
		assert.Equal(t, reputationCap, result.Score)
	})

	t.Run("missing fingerprint", func(t *testing.T) {
		in := Input{Amount: amt("42.13")}
		result := Evaluate(in, VelocityCounts{}, decimal.Zero, 0, false)
		assert.Equal(t, 5, result.Score)
	})

	t.Run("blocked ip and missing fingerprint capped", func(t *testing.T) {
		in := Input{Amount: amt("42.13"), IPAddress: "203.0.113.9"}
		result := Evaluate(in, VelocityCounts{}, decimal.Zero, 0, true)
		assert.Equal(t, reputationCap, result.Score)
	})
}

func TestEvaluateAllSignalsFiring(t *testing.T) {
	in := Input{Amount: amt("9999.99"), IPAddress: "203.0.113.9"}
	counts := VelocityCounts{LastHour: 20, LastDay: 40, LastWeek: 100}
	result := Evaluate(in, counts, amt("10.00"), 5, true)

	// 35 velocity + 30 ratio + 15 pattern + 15 reputation.
	assert.Equal(t, 95, result.Score)
	assert.Equal(t, TierHigh, result.Tier)
	assert.Len(t, result.Reasons, 4)
}

func TestEvaluateReasons(t *testing.T) {
	in := Input{Amount: amt("0.01"), Currency: "USD", DeviceFingerprint: "dev_1"}
	result := Evaluate(in, VelocityCounts{}, decimal.Zero, 0, false)

	assert.Equal(t, 15, result.Score)
	assert.Equal(t, TierLow, result.Tier)
	assert.Equal(t, []string{"known card-testing amount 0.01"}, result.Reasons)
}

func TestNewScorerTrimsBlockedIPs(t *testing.T) {
	scorer := NewScorer(nil, nil, []string{" 203.0.113.9 ", "", "198.51.100.4"})

	assert.True(t, scorer.ipBlocked("203.0.113.9"))
	assert.True(t, scorer.ipBlocked("198.51.100.4"))
	assert.False(t, scorer.ipBlocked(""))
	assert.False(t, scorer.ipBlocked("192.0.2.1"))
}
