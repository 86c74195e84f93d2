package pool

import "errors"

// ErrPoolDisconnected is returned by Acquire once the pool has been (or is
// being) closed, and by any waiter parked at the time Close is called.
var ErrPoolDisconnected = errors.New("pool: disconnected")
