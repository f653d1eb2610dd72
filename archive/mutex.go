package archive

import "sync"

// BucketLocks is a set of mutexes keyed by destination bucket. Holding a
// key serializes the duplicate scan and the move into that bucket while
// other buckets proceed in parallel.
type BucketLocks struct {
	mu      sync.Mutex
	buckets map[string]*bucketLock
}

// bucketLock lives in the map while at least one caller holds or waits for it
type bucketLock struct {
	sync.Mutex
	waiters int
}

func NewBucketLocks() *BucketLocks {
	return &BucketLocks{buckets: make(map[string]*bucketLock)}
}

// Lock blocks until the bucket is free
func (b *BucketLocks) Lock(key string) {
	b.mu.Lock()
	l, ok := b.buckets[key]
	if !ok {
		l = &bucketLock{}
		b.buckets[key] = l
	}
	l.waiters++
	b.mu.Unlock()

	l.Lock()
}

// Unlock releases a bucket taken with Lock. Unlocking a bucket that is not
// held panics like sync.Mutex does.
func (b *BucketLocks) Unlock(key string) {
	b.mu.Lock()
	l, ok := b.buckets[key]
	if !ok {
		b.mu.Unlock()
		panic("archive: unlock of unlocked bucket " + key)
	}
	l.waiters--
	if l.waiters == 0 {
		delete(b.buckets, key)
	}
	b.mu.Unlock()

	l.Unlock()
}
