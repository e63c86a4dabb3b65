package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/payflowhq/payflow/app/models"
	"github.com/payflowhq/payflow/app/repository"
)

// Decision kinds returned by Begin.
const (
	DecisionProceed  = "proceed"
	DecisionReplay   = "replay"
	DecisionConflict = "conflict"
)

// Conflict reasons.
const (
	ReasonInFlight            = "request with this key is already in flight"
	ReasonFingerprintMismatch = "key reused with a different payload"
)

// Decision is the outcome of claiming an idempotency key.
type Decision struct {
	Kind           string
	Reason         string // set for conflicts
	ResponseStatus int    // set for replays
	ResponseBody   []byte // set for replays
	StoredStatus   string // completed or failed, for replays
}

// Service deduplicates client-initiated mutating requests. The durable store
// is the source of truth; a redis cache answers replays for finalized keys
// without touching the database.
type Service struct {
	repo  repository.IdempotencyRepository
	redis *redis.Client
	ttl   time.Duration
}

// NewService creates an idempotency service. redisClient may be nil, which
// disables the fast path.
func NewService(repo repository.IdempotencyRepository, redisClient *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = models.DefaultIdempotencyTTL
	}
	return &Service{repo: repo, redis: redisClient, ttl: ttl}
}

// Fingerprint builds the canonical request fingerprint: a SHA-256 over the
// operation and the normalized payload parts.
func Fingerprint(operation string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(operation))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(strings.TrimSpace(p)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Begin claims the key. Exactly one concurrent caller per key gets Proceed;
// the rest observe Replay or Conflict. A caller that received Proceed MUST
// finalize with Complete, including on failure paths.
func (s *Service) Begin(ctx context.Context, key, accountID, operation, fingerprint string) (*Decision, error) {
	if !models.ValidIdempotencyKey(key) {
		return nil, fmt.Errorf("idempotency: invalid key syntax")
	}

	if d := s.cachedDecision(ctx, key, fingerprint); d != nil {
		return d, nil
	}

	record := &models.IdempotencyRecord{
		Key:         key,
		AccountID:   accountID,
		Operation:   operation,
		Fingerprint: fingerprint,
		Status:      models.IdempotencyStatusProcessing,
		ExpiresAt:   time.Now().Add(s.ttl),
	}
	created, stored, err := s.repo.InsertIfAbsent(record)
	if err != nil {
		return nil, fmt.Errorf("idempotency: claim key: %w", err)
	}
	if created {
		return &Decision{Kind: DecisionProceed}, nil
	}

	// The key exists; the stored fingerprint decides everything else.
	if stored.Fingerprint != fingerprint {
		return &Decision{Kind: DecisionConflict, Reason: ReasonFingerprintMismatch}, nil
	}
	switch stored.Status {
	case models.IdempotencyStatusProcessing:
		return &Decision{Kind: DecisionConflict, Reason: ReasonInFlight}, nil
	case models.IdempotencyStatusCompleted, models.IdempotencyStatusFailed:
		return &Decision{
			Kind:           DecisionReplay,
			StoredStatus:   stored.Status,
			ResponseStatus: stored.ResponseStatus,
			ResponseBody:   stored.ResponseBody,
		}, nil
	default:
		return nil, fmt.Errorf("idempotency: record %s in unknown status %q", key, stored.Status)
	}
}

// Complete finalizes a key claimed via Begin. status must be completed or
// failed; either way the stored response makes a later retry deterministic.
func (s *Service) Complete(ctx context.Context, key, status string, responseStatus int, responseBody []byte) error {
	if status != models.IdempotencyStatusCompleted && status != models.IdempotencyStatusFailed {
		return fmt.Errorf("idempotency: invalid finalize status %q", status)
	}
	if err := s.repo.Finalize(key, status, responseStatus, responseBody); err != nil {
		return fmt.Errorf("idempotency: finalize key: %w", err)
	}
	s.cacheRecord(ctx, key, status, responseStatus, responseBody)
	return nil
}

// GC removes expired records. Returns how many were deleted.
func (s *Service) GC(now time.Time) (int64, error) {
	return s.repo.DeleteExpired(now)
}

// cachedRecord is the redis fast-path representation of a finalized key.
type cachedRecord struct {
	Fingerprint    string `json:"fingerprint"`
	Status         string `json:"status"`
	ResponseStatus int    `json:"response_status"`
	ResponseBody   []byte `json:"response_body"`
}

func cacheKey(key string) string {
	return "idempotency:" + key
}

func (s *Service) cachedDecision(ctx context.Context, key, fingerprint string) *Decision {
	if s.redis == nil {
		return nil
	}
	raw, err := s.redis.Get(ctx, cacheKey(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warnf("[Idempotency] Cache read failed for %s: %v", key, err)
		}
		return nil
	}
	var rec cachedRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		log.Warnf("[Idempotency] Dropping broken cache entry for %s: %v", key, err)
		_ = s.redis.Del(ctx, cacheKey(key)).Err()
		return nil
	}
	if rec.Fingerprint != fingerprint {
		return &Decision{Kind: DecisionConflict, Reason: ReasonFingerprintMismatch}
	}
	return &Decision{
		Kind:           DecisionReplay,
		StoredStatus:   rec.Status,
		ResponseStatus: rec.ResponseStatus,
		ResponseBody:   rec.ResponseBody,
	}
}

func (s *Service) cacheRecord(ctx context.Context, key, status string, responseStatus int, responseBody []byte) {
	if s.redis == nil {
		return
	}
	stored, err := s.repo.GetByKey(key)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Idempotency] Cache fill lookup failed for %s: %v", key, err)
		}
		return
	}
	data, err := json.Marshal(cachedRecord{
		Fingerprint:    stored.Fingerprint,
		Status:         status,
		ResponseStatus: responseStatus,
		ResponseBody:   responseBody,
	})
	if err != nil {
		return
	}
	expiry := time.Until(stored.ExpiresAt)
	if expiry <= 0 {
		return
	}
	if err := s.redis.Set(ctx, cacheKey(key), data, expiry).Err(); err != nil {
		log.Warnf("[Idempotency] Cache write failed for %s: %v", key, err)
	}
}
