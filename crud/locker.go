package crud

import (
	"hash/fnv"
	"sort"
	"sync"

	"wtfGram/domain"
)

const defaultStripes = 256

// stripedLocker serializes work on entities by id without keeping a mutex per entity.
// Ids are hashed onto a fixed set of mutexes. Locking several ids always takes their
// stripes in ascending order, so two callers locking overlapping sets cannot deadlock.
type stripedLocker struct {
	stripes []sync.Mutex
}

func newStripedLocker(n int) *stripedLocker {
	if n <= 0 {
		n = defaultStripes
	}
	return &stripedLocker{stripes: make([]sync.Mutex, n)}
}

func (l *stripedLocker) stripe(id string) int {
	h := fnv.New32a()
	h.Write([]byte(domain.CanonicalID(id)))
	return int(h.Sum32() % uint32(len(l.stripes)))
}

// Lock locks the stripes of all ids and returns a func releasing them.
func (l *stripedLocker) Lock(ids ...string) (unlock func()) {
	seen := make(map[int]bool, len(ids))
	idx := make([]int, 0, len(ids))
	for _, id := range ids {
		i := l.stripe(id)
		if !seen[i] {
			seen[i] = true
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	for _, i := range idx {
		l.stripes[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			l.stripes[idx[j]].Unlock()
		}
	}
}
