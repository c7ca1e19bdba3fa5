package redisx

import "time"

const (
	// Idempotent order create: idem:order:create:{user_id}:{idempotency_key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour

	// A claim that was never completed (crashed request) expires after this.
	TTLIdempotencyClaim = 2 * time.Minute
)
