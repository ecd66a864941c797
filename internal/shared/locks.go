package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
)

// ScanLockKey builds redis keys for background scan critical sections.
func ScanLockKey(scan string) string {
	return fmt.Sprintf("jobs:%s:lock", scan)
}

// ObtainScanLock acquires the named scan lock without retrying. Callers that
// fail to obtain it should skip the run; another worker holds it.
func ObtainScanLock(ctx context.Context, locker *redislock.Client, scan string, ttl time.Duration) (*redislock.Lock, error) {
	return locker.Obtain(ctx, ScanLockKey(scan), ttl, nil)
}
