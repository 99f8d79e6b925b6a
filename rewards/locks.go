package rewards

import "sync"

const lockShards = 64

// keyLocks serializes work per customer without a global lock. Two IDs may
// share a shard; that only costs some contention, never correctness.
type keyLocks struct {
	shards [lockShards]sync.Mutex
}

func (k *keyLocks) lock(id CustomerID) func() {
	m := &k.shards[shardFor(id)]
	m.Lock()
	return m.Unlock
}

func shardFor(id CustomerID) uint64 {
	// splitmix64 finalizer so sequential IDs spread across shards
	x := uint64(id)
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x % lockShards
}
