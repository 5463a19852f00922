// Package lock provides run-level mutual exclusion keyed by mailbox identity.
package lock

import "context"

// Locker grants exclusive ownership of a key. TryLock never blocks waiting for
// a holder: it reports ok=false when the key is already held. The returned
// unlock function is nil unless ok is true.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}
