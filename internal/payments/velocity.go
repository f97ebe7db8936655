package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/telehealth-bff/pkg/logging"
)

const (
	CheckInitiation = "initiation"
	CheckRefund     = "refund"
)

// BlockObserver is notified whenever a velocity check rejects a request.
type BlockObserver interface {
	ObserveVelocityBlocked(check string)
}

// VelocityChecker implements rate limiting for fraud prevention.
type VelocityChecker struct {
	redis    *redis.Client
	logger   *logging.Logger
	config   VelocityConfig
	observer BlockObserver
}

// VelocityConfig contains velocity check configuration.
type VelocityConfig struct {
	// Max payment initiations per user per window
	MaxInitiationsPerUser int
	InitiationWindow      time.Duration

	// Max refund requests per original transaction per window
	MaxRefundsPerTxn int
	RefundWindow     time.Duration

	EnableInitiationCheck bool
	EnableRefundCheck     bool
}

// DefaultVelocityConfig returns default velocity limits.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		MaxInitiationsPerUser: 5,
		InitiationWindow:      time.Hour,
		MaxRefundsPerTxn:      1,
		RefundWindow:          7 * 24 * time.Hour,
		EnableInitiationCheck: true,
		EnableRefundCheck:     true,
	}
}

// VelocityResult contains the result of a velocity check.
type VelocityResult struct {
	Allowed      bool
	CheckType    string
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
	Message      string
}

// NewVelocityChecker creates a new velocity checker. A nil Redis client disables
// every check.
func NewVelocityChecker(redisClient *redis.Client, config VelocityConfig, logger *logging.Logger) *VelocityChecker {
	if logger == nil {
		logger = logging.Default()
	}
	return &VelocityChecker{
		redis:  redisClient,
		logger: logger,
		config: config,
	}
}

// WithBlockObserver attaches an observer for rejected checks.
func (v *VelocityChecker) WithBlockObserver(obs BlockObserver) *VelocityChecker {
	v.observer = obs
	return v
}

// CheckInitiationVelocity checks whether userID may start another payment.
func (v *VelocityChecker) CheckInitiationVelocity(ctx context.Context, userID string) (*VelocityResult, error) {
	if v == nil || v.redis == nil || !v.config.EnableInitiationCheck {
		return &VelocityResult{Allowed: true, CheckType: CheckInitiation}, nil
	}
	return v.check(ctx, CheckInitiation, initiationKey(userID), v.config.MaxInitiationsPerUser, v.config.InitiationWindow, "user_id", userID)
}

// CheckRefundVelocity checks whether another refund may be requested for the
// original transaction.
func (v *VelocityChecker) CheckRefundVelocity(ctx context.Context, originalTxnID string) (*VelocityResult, error) {
	if v == nil || v.redis == nil || !v.config.EnableRefundCheck {
		return &VelocityResult{Allowed: true, CheckType: CheckRefund}, nil
	}
	return v.check(ctx, CheckRefund, refundKey(originalTxnID), v.config.MaxRefundsPerTxn, v.config.RefundWindow, "original_transaction_id", originalTxnID)
}

func (v *VelocityChecker) check(ctx context.Context, checkType, key string, max int, window time.Duration, subjectKey, subject string) (*VelocityResult, error) {
	ctx, span := phonepeTracer.Start(ctx, "velocity.check_"+checkType)
	defer span.End()
	span.SetAttributes(attribute.String("velocity.check_type", checkType))

	count, expiry, err := v.incrementAndGet(ctx, key, window)
	if err != nil {
		v.logger.Error("velocity check failed", "error", err, "key", key)
		// Fail open - allow the payment if Redis is down
		return &VelocityResult{Allowed: true, CheckType: checkType, Message: "velocity check unavailable"}, nil
	}

	result := &VelocityResult{
		Allowed:      count <= max,
		CheckType:    checkType,
		CurrentCount: count,
		MaxAllowed:   max,
		WindowExpiry: expiry,
	}

	if !result.Allowed {
		result.Message = fmt.Sprintf("exceeded %d %s attempts in %s", max, checkType, window)
		v.logger.Warn(checkType+" velocity exceeded",
			subjectKey, subject,
			"count", count,
			"max", max,
		)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
		if v.observer != nil {
			v.observer.ObserveVelocityBlocked(checkType)
		}
	}

	return result, nil
}

// incrementAndGet increments a counter and returns the new value with expiry time.
func (v *VelocityChecker) incrementAndGet(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}

	// Set expiry only on first increment
	if count == 1 {
		v.redis.Expire(ctx, key, window)
	}

	ttl, err := v.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}

	return int(count), time.Now().Add(ttl), nil
}

// ResetInitiationVelocity clears the initiation counter for a user (admin use).
func (v *VelocityChecker) ResetInitiationVelocity(ctx context.Context, userID string) error {
	if v == nil || v.redis == nil {
		return nil
	}
	if err := v.redis.Del(ctx, initiationKey(userID)).Err(); err != nil {
		return fmt.Errorf("payments: reset velocity: %w", err)
	}
	return nil
}

// GetInitiationStats returns current initiation velocity stats for a user.
func (v *VelocityChecker) GetInitiationStats(ctx context.Context, userID string) (*VelocityResult, error) {
	if v == nil {
		return &VelocityResult{Allowed: true, CheckType: CheckInitiation}, nil
	}
	result := &VelocityResult{Allowed: true, CheckType: CheckInitiation, MaxAllowed: v.config.MaxInitiationsPerUser}
	if v.redis == nil {
		return result, nil
	}
	key := initiationKey(userID)

	count, err := v.redis.Get(ctx, key).Int()
	if err == redis.Nil {
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("payments: velocity stats: %w", err)
	}

	ttl, _ := v.redis.TTL(ctx, key).Result()
	result.Allowed = count < v.config.MaxInitiationsPerUser
	result.CurrentCount = count
	result.WindowExpiry = time.Now().Add(ttl)
	return result, nil
}

func initiationKey(userID string) string {
	return fmt.Sprintf("velocity:payment:initiate:%s", userID)
}

func refundKey(txnID string) string {
	return fmt.Sprintf("velocity:payment:refund:%s", txnID)
}
