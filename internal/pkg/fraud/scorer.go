package fraud

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/payflowhq/payflow/app/repository"
)

// Risk tiers derived from the 0-100 score.
const (
	TierLow    = "low"
	TierMedium = "medium"
	TierHigh   = "high"
)

const (
	mediumThreshold = 40
	highThreshold   = 70
)

// Sub-score caps. Each heuristic is capped independently; the sum is clamped
// to 100.
const (
	velocityCap   = 35
	amountCap     = 30
	patternCap    = 20
	reputationCap = 15
)

// Input carries the request attributes evaluated alongside the customer's
// transaction history.
type Input struct {
	CustomerID        uint
	AccountID         string
	Amount            decimal.Decimal
	Currency          string
	DeviceFingerprint string
	IPAddress         string
}

// Result is the scoring outcome snapshot stored on the transaction.
type Result struct {
	Score   int      `json:"score"`
	Tier    string   `json:"tier"`
	Reasons []string `json:"reasons,omitempty"`
}

// VelocityCounts are the trailing-window transaction counts for a customer.
type VelocityCounts struct {
	LastHour int64
	LastDay  int64
	LastWeek int64
}

// Scorer computes a heuristic fraud score from recent history plus request
// attributes. It reads the ledger but never mutates it.
type Scorer struct {
	transactions repository.TransactionRepository
	redis        *redis.Client
	blockedIPs   map[string]struct{}
}

// NewScorer creates a fraud scorer. The redis client accelerates velocity
// counting; when nil (or unavailable) counting falls back to the database.
func NewScorer(transactions repository.TransactionRepository, redisClient *redis.Client, blockedIPs []string) *Scorer {
	blocked := make(map[string]struct{}, len(blockedIPs))
	for _, ip := range blockedIPs {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			blocked[ip] = struct{}{}
		}
	}
	return &Scorer{
		transactions: transactions,
		redis:        redisClient,
		blockedIPs:   blocked,
	}
}

// Score evaluates one payment attempt. It is stateless per call aside from
// bumping the velocity counters.
func (s *Scorer) Score(ctx context.Context, in Input) (*Result, error) {
	counts, err := s.velocityCounts(ctx, in.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("fraud: velocity lookup: %w", err)
	}

	avg, sampleSize, err := s.transactions.AverageSucceededAmount(in.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("fraud: baseline lookup: %w", err)
	}

	result := Evaluate(in, counts, avg, sampleSize, s.ipBlocked(in.IPAddress))

	s.bumpVelocity(ctx, in.CustomerID)
	return result, nil
}

// Rescore evaluates a transaction after the fact without touching the
// velocity counters, so post-hoc analysis does not inflate the live signal.
func (s *Scorer) Rescore(ctx context.Context, in Input) (*Result, error) {
	counts, err := s.velocityCounts(ctx, in.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("fraud: velocity lookup: %w", err)
	}
	avg, sampleSize, err := s.transactions.AverageSucceededAmount(in.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("fraud: baseline lookup: %w", err)
	}
	return Evaluate(in, counts, avg, sampleSize, s.ipBlocked(in.IPAddress)), nil
}

// Evaluate is the pure scoring function: no I/O, fully deterministic for a
// given set of observations.
func Evaluate(in Input, counts VelocityCounts, avgAmount decimal.Decimal, sampleSize int64, ipBlocked bool) *Result {
	score := 0
	var reasons []string

	if v, reason := velocityScore(counts); v > 0 {
		score += v
		reasons = append(reasons, reason)
	}
	if v, reason := amountRatioScore(in.Amount, avgAmount, sampleSize); v > 0 {
		score += v
		reasons = append(reasons, reason)
	}
	if v, reason := amountPatternScore(in.Amount); v > 0 {
		score += v
		reasons = append(reasons, reason)
	}
	if v, reason := reputationScore(in, ipBlocked); v > 0 {
		score += v
		reasons = append(reasons, reason)
	}

	if score > 100 {
		score = 100
	}

	return &Result{Score: score, Tier: TierFor(score), Reasons: reasons}
}

// TierFor maps a score to its coarse risk bucket.
func TierFor(score int) string {
	switch {
	case score >= highThreshold:
		return TierHigh
	case score >= mediumThreshold:
		return TierMedium
	default:
		return TierLow
	}
}

func velocityScore(c VelocityCounts) (int, string) {
	score := 0
	switch {
	case c.LastHour >= 10:
		score += 25
	case c.LastHour >= 5:
		score += 15
	case c.LastHour >= 3:
		score += 8
	}
	switch {
	case c.LastDay >= 30:
		score += 15
	case c.LastDay >= 15:
		score += 8
	}
	if c.LastWeek >= 80 {
		score += 10
	}
	if score > velocityCap {
		score = velocityCap
	}
	if score == 0 {
		return 0, ""
	}
	return score, fmt.Sprintf("velocity: %d/1h %d/24h %d/7d", c.LastHour, c.LastDay, c.LastWeek)
}

// amountRatioScore compares the attempt against the customer's personal
// average. The baseline counts succeeded payments only; a thin history
// (fewer than 3 samples) is not a usable baseline.
func amountRatioScore(amount, avg decimal.Decimal, sampleSize int64) (int, string) {
	if sampleSize < 3 || avg.IsZero() {
		return 0, ""
	}
	ratio := amount.Div(avg)
	score := 0
	switch {
	case ratio.GreaterThanOrEqual(decimal.NewFromInt(10)):
		score = amountCap
	case ratio.GreaterThanOrEqual(decimal.NewFromInt(5)):
		score = 20
	case ratio.GreaterThanOrEqual(decimal.NewFromInt(3)):
		score = 10
	}
	if score == 0 {
		return 0, ""
	}
	return score, fmt.Sprintf("amount %s is %sx personal average %s", amount, ratio.Round(1), avg)
}

var testAmounts = []string{"0.01", "1.00", "1.11", "123.45", "9999.99"}

func amountPatternScore(amount decimal.Decimal) (int, string) {
	str := amount.StringFixed(2)
	for _, t := range testAmounts {
		if str == t {
			return 15, "known card-testing amount " + str
		}
	}
	// Large round figures (multiples of 100) are a weak fraud signal.
	if amount.GreaterThanOrEqual(decimal.NewFromInt(500)) &&
		amount.Mod(decimal.NewFromInt(100)).IsZero() {
		return 10, "round amount " + str
	}
	return 0, ""
}

func reputationScore(in Input, ipBlocked bool) (int, string) {
	score := 0
	var parts []string
	if ipBlocked {
		score += reputationCap
		parts = append(parts, "ip "+in.IPAddress+" on blocklist")
	}
	if in.DeviceFingerprint == "" {
		score += 5
		parts = append(parts, "no device fingerprint")
	}
	if score > reputationCap {
		score = reputationCap
	}
	if score == 0 {
		return 0, ""
	}
	return score, strings.Join(parts, "; ")
}

func (s *Scorer) ipBlocked(ip string) bool {
	if ip == "" {
		return false
	}
	_, ok := s.blockedIPs[ip]
	return ok
}

// Velocity window definitions. The redis counters are the fast path; the
// 1h/24h counts fall back to the database when redis is unreachable.
var velocityWindows = []struct {
	suffix string
	d      time.Duration
}{
	{"1h", time.Hour},
	{"24h", 24 * time.Hour},
	{"7d", 7 * 24 * time.Hour},
}

func velocityKey(customerID uint, suffix string) string {
	return fmt.Sprintf("fraud:velocity:%d:%s", customerID, suffix)
}

func (s *Scorer) velocityCounts(ctx context.Context, customerID uint) (VelocityCounts, error) {
	if s.redis != nil {
		counts, err := s.redisCounts(ctx, customerID)
		if err == nil {
			return counts, nil
		}
		log.Warnf("[Fraud] Redis velocity lookup failed, falling back to DB: %v", err)
	}
	return s.dbCounts(customerID)
}

func (s *Scorer) redisCounts(ctx context.Context, customerID uint) (VelocityCounts, error) {
	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(velocityWindows))
	for i, w := range velocityWindows {
		cmds[i] = pipe.Get(ctx, velocityKey(customerID, w.suffix))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return VelocityCounts{}, err
	}

	vals := make([]int64, len(cmds))
	for i, cmd := range cmds {
		v, err := cmd.Int64()
		if err != nil && err != redis.Nil {
			return VelocityCounts{}, err
		}
		vals[i] = v
	}
	return VelocityCounts{LastHour: vals[0], LastDay: vals[1], LastWeek: vals[2]}, nil
}

func (s *Scorer) dbCounts(customerID uint) (VelocityCounts, error) {
	now := time.Now()
	hour, err := s.transactions.CountByCustomerSince(customerID, now.Add(-time.Hour))
	if err != nil {
		return VelocityCounts{}, err
	}
	day, err := s.transactions.CountByCustomerSince(customerID, now.Add(-24*time.Hour))
	if err != nil {
		return VelocityCounts{}, err
	}
	week, err := s.transactions.CountByCustomerSince(customerID, now.Add(-7*24*time.Hour))
	if err != nil {
		return VelocityCounts{}, err
	}
	return VelocityCounts{LastHour: hour, LastDay: day, LastWeek: week}, nil
}

// bumpVelocity is best-effort; a missed increment only softens the velocity
// signal for one window.
func (s *Scorer) bumpVelocity(ctx context.Context, customerID uint) {
	if s.redis == nil {
		return
	}
	pipe := s.redis.Pipeline()
	for _, w := range velocityWindows {
		key := velocityKey(customerID, w.suffix)
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, w.d)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warnf("[Fraud] Failed to bump velocity counters for customer %d: %v", customerID, err)
	}
}
