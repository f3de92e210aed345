package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/raedjah1/bopmaps-cache/internal/payload"
	"github.com/raedjah1/bopmaps-cache/pkg/metrics"
)

// Memory is the in-memory LRU tier, partitioned by zoom bucket. Each bucket
// holds at most itemsPerBucket entries and the whole tier at most maxItems;
// the oldest-inserted entry is discarded first when either budget is exceeded.
type Memory struct {
	mu             sync.Mutex
	buckets        map[int]*memBucket
	itemsPerBucket int
	maxItems       int
	total          int
	ttl            time.Duration
	now            func() time.Time
}

type memBucket struct {
	ll    *list.List
	items map[string]*list.Element
}

func NewMemory(itemsPerBucket, maxItems int, ttl time.Duration) *Memory {
	if itemsPerBucket <= 0 {
		itemsPerBucket = 50
	}
	if maxItems <= 0 {
		maxItems = 100
	}
	return &Memory{
		buckets:        make(map[int]*memBucket),
		itemsPerBucket: itemsPerBucket,
		maxItems:       maxItems,
		ttl:            ttl,
		now:            time.Now,
	}
}

func (m *Memory) Get(k Key) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[k.Bucket]
	if !ok {
		return Entry{}, false
	}
	elem, ok := b.items[k.String()]
	if !ok {
		return Entry{}, false
	}

	entry := elem.Value.(Entry)
	if entry.Expired(m.ttl, m.now()) {
		m.removeLocked(b, k.Bucket, elem)
		metrics.CacheEvictions.WithLabelValues("ttl").Inc()
		return Entry{}, false
	}

	b.ll.MoveToFront(elem)
	return entry, true
}

func (m *Memory) Has(k Key) bool {
	_, ok := m.Get(k)
	return ok
}

func (m *Memory) Put(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[e.Key.Bucket]
	if !ok {
		b = &memBucket{ll: list.New(), items: make(map[string]*list.Element)}
		m.buckets[e.Key.Bucket] = b
	}

	id := e.Key.String()
	if elem, ok := b.items[id]; ok {
		elem.Value = e
		b.ll.MoveToFront(elem)
		return
	}

	b.items[id] = b.ll.PushFront(e)
	m.total++

	for b.ll.Len() > m.itemsPerBucket {
		m.evictOldestLocked(b, e.Key.Bucket)
	}
	for m.total > m.maxItems {
		m.evictGlobalOldestLocked()
	}
}

func (m *Memory) Delete(k Key) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[k.Bucket]
	if !ok {
		return
	}
	if elem, ok := b.items[k.String()]; ok {
		m.removeLocked(b, k.Bucket, elem)
	}
}

// EntriesInBucket snapshots the live entries of one zoom bucket. Used by the
// coordinator's overlap scan.
func (m *Memory) EntriesInBucket(bucket int) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[bucket]
	if !ok {
		return nil
	}

	now := m.now()
	entries := make([]Entry, 0, b.ll.Len())
	for elem := b.ll.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(Entry)
		if entry.Expired(m.ttl, now) {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

func (m *Memory) BucketLen(bucket int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.buckets[bucket]; ok {
		return b.ll.Len()
	}
	return 0
}

func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets = make(map[int]*memBucket)
	m.total = 0
}

func (m *Memory) ClearType(t payload.DataType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for bucket, b := range m.buckets {
		var next *list.Element
		for elem := b.ll.Front(); elem != nil; elem = next {
			next = elem.Next()
			if elem.Value.(Entry).Key.Type == t {
				m.removeLocked(b, bucket, elem)
			}
		}
	}
}

// evictOldestLocked drops the back of one bucket's list: the entry least
// recently touched, which with no intervening reads is the oldest-inserted.
func (m *Memory) evictOldestLocked(b *memBucket, bucket int) {
	oldest := b.ll.Back()
	if oldest == nil {
		return
	}
	m.removeLocked(b, bucket, oldest)
	metrics.CacheEvictions.WithLabelValues("lru").Inc()
}

func (m *Memory) evictGlobalOldestLocked() {
	var (
		victim       *list.Element
		victimBucket *memBucket
		victimID     int
	)
	for id, b := range m.buckets {
		back := b.ll.Back()
		if back == nil {
			continue
		}
		if victim == nil || back.Value.(Entry).StoredAt.Before(victim.Value.(Entry).StoredAt) {
			victim, victimBucket, victimID = back, b, id
		}
	}
	if victim == nil {
		return
	}
	m.removeLocked(victimBucket, victimID, victim)
	metrics.CacheEvictions.WithLabelValues("lru").Inc()
}

func (m *Memory) removeLocked(b *memBucket, bucket int, elem *list.Element) {
	entry := elem.Value.(Entry)
	delete(b.items, entry.Key.String())
	b.ll.Remove(elem)
	m.total--
	if b.ll.Len() == 0 {
		delete(m.buckets, bucket)
	}
}
