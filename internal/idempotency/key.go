package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// hashDomain namespaces the key derivation; the NUL separator prevents
// domain/payload boundary ambiguity.
const hashDomain = "notcli/idempotency/v1"

// TimeBucket is the coarse window within which identical requests
// deduplicate. Requests falling in different buckets get distinct keys, so
// a legitimately repeated mutation eventually re-executes.
const TimeBucket = 2 * time.Minute

func hashWithDomain(data []byte) string {
	h := sha256.New()
	h.Write([]byte(hashDomain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashShape returns the canonical hash of a request shape. Shapes that are
// structurally equal up to object-key ordering hash identically.
func HashShape(shape any) (string, error) {
	canonical, err := MarshalCanonical(shape)
	if err != nil {
		return "", fmt.Errorf("canonicalize request shape: %w", err)
	}
	return hashWithDomain(canonical), nil
}

// DeriveKey computes the idempotency key for a command invocation at the
// given time. The key covers the command name, the canonical request
// shape, and the floored time bucket.
func DeriveKey(command string, shape any, now time.Time) (key, inputHash string, err error) {
	inputHash, err = HashShape(shape)
	if err != nil {
		return "", "", err
	}
	bucket := now.UTC().Truncate(TimeBucket).Unix()
	key = hashWithDomain([]byte(fmt.Sprintf("%s\x00%s\x00%d", command, inputHash, bucket)))
	return key, inputHash, nil
}
