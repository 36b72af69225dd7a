package crud

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestStripedLockerSameIDDifferentForms(t *testing.T) {
	l := newStripedLocker(16)
	id := uuid.New()
	assert.Equal(t, l.stripe(id.String()), l.stripe("  "+id.String()+" "))
}

func TestStripedLockerOverlappingSets(t *testing.T) {
	l := newStripedLocker(4)
	a, b, c := uuid.NewString(), uuid.NewString(), uuid.NewString()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var unlock func()
			switch i % 3 {
			case 0:
				unlock = l.Lock(a, b)
			case 1:
				unlock = l.Lock(b, a)
			default:
				unlock = l.Lock(c, b, a)
			}
			counter++
			unlock()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 200, counter)
}

func TestStripedLockerSameStripeTwice(t *testing.T) {
	// With a single stripe every id collides, locking must not deadlock on itself.
	l := newStripedLocker(1)
	unlock := l.Lock(uuid.NewString(), uuid.NewString())
	unlock()
	unlock = l.Lock(uuid.NewString())
	unlock()
}
