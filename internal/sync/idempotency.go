package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// IdempotencyKey derives the creation key for a queued add from its local
// id, creation timestamp and normalized natural key. Deterministic, so every
// retry of the same logical creation presents the same key and the server
// can recognize a resend.
func IdempotencyKey(localID string, createdAt int64, naturalKey string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", localID, createdAt, naturalKey)))
	return hex.EncodeToString(sum[:])
}
