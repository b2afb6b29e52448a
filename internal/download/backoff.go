package download

import (
	"crypto/rand"
	"math/big"
	"time"
)

const maxJitter = time.Second

// backoff returns the wait before retry number retry (1-based):
// base*2^(retry-1) plus up to one second of jitter.
func backoff(base time.Duration, retry int, jitter func(time.Duration) time.Duration) time.Duration {
	if retry < 1 {
		retry = 1
	}
	shift := retry - 1
	if shift > 20 {
		shift = 20
	}
	return base*time.Duration(1<<shift) + jitter(maxJitter)
}

// randomJitter returns a uniformly random duration in [0, limit).
func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
