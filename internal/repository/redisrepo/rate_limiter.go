// internal/repository/redisrepo/rate_limiter.go
package redisrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	client *redis.Client
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// CheckLoginAttempt checks if login attempt is allowed
func (r *RateLimiter) CheckLoginAttempt(ctx context.Context, ip, email string) (bool, int64, error) {
	key := fmt.Sprintf("ratelimit:login:%s:%s", ip, email)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment login attempt: %w", err)
	}

	// Set expiration on first attempt
	if count == 1 {
		r.client.Expire(ctx, key, 15*time.Minute)
	}

	maxAttempts := int64(5)
	remaining := maxAttempts - count
	if remaining < 0 {
		remaining = 0
	}

	// Allow up to 5 attempts per 15 minutes
	return count <= maxAttempts, remaining, nil
}

// ResetLoginAttempts resets the login attempt counter
func (r *RateLimiter) ResetLoginAttempts(ctx context.Context, ip, email string) error {
	key := fmt.Sprintf("ratelimit:login:%s:%s", ip, email)
	return r.client.Del(ctx, key).Err()
}

// CheckCodeResend throttles one-time-code resends per subject and purpose.
func (r *RateLimiter) CheckCodeResend(ctx context.Context, subjectID int64, purpose string) (bool, error) {
	key := fmt.Sprintf("ratelimit:stepup:%d:%s", subjectID, purpose)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment resend counter: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, key, 10*time.Minute)
	}

	// Allow up to 3 sends per 10 minutes
	return count <= 3, nil
}

// ResetCodeResend clears the resend throttle after a successful verification.
func (r *RateLimiter) ResetCodeResend(ctx context.Context, subjectID int64, purpose string) error {
	key := fmt.Sprintf("ratelimit:stepup:%d:%s", subjectID, purpose)
	return r.client.Del(ctx, key).Err()
}
