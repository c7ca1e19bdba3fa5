package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrInFlight means another request with the same key is still running.
var ErrInFlight = errors.New("request with this idempotency key is in progress")

const claimPending = "pending"

// Idempotency stores the order id created for a client-supplied key, per user.
type Idempotency struct {
	rdb *redis.Client
}

func NewIdempotency(rdb *redis.Client) *Idempotency {
	return &Idempotency{rdb: rdb}
}

func idemKey(userID, key string) string {
	return fmt.Sprintf(KeyIdemOrderCreate, userID, key)
}

// Claim reserves key for userID. It returns the order id of an earlier
// completed request, or "" when the caller now owns the key and must call
// Complete or Release.
func (i *Idempotency) Claim(ctx context.Context, userID, key string) (string, error) {
	k := idemKey(userID, key)
	ok, err := i.rdb.SetNX(ctx, k, claimPending, TTLIdempotencyClaim).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return "", nil
	}

	v, err := i.rdb.Get(ctx, k).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired between SETNX and GET; try once more.
		ok, err = i.rdb.SetNX(ctx, k, claimPending, TTLIdempotencyClaim).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return "", nil
		}
		return "", ErrInFlight
	case err != nil:
		return "", err
	case v == claimPending:
		return "", ErrInFlight
	default:
		return v, nil
	}
}

func (i *Idempotency) Complete(ctx context.Context, userID, key, orderID string) error {
	return i.rdb.Set(ctx, idemKey(userID, key), orderID, TTLIdempotency).Err()
}

// Release drops a claim whose request failed, so the client may retry.
func (i *Idempotency) Release(ctx context.Context, userID, key string) error {
	return i.rdb.Del(ctx, idemKey(userID, key)).Err()
}
