package ledger

import (
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("keyLocks", func() {
	It("serializes holders of one key and frees idle entries", func() {
		locks := newKeyLocks()
		var (
			wg      sync.WaitGroup
			inside  atomic.Int32
			maxSeen atomic.Int32
		)

		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := locks.lock("o", "k")
				n := inside.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				inside.Add(-1)
				unlock()
			}()
		}
		wg.Wait()

		Expect(maxSeen.Load()).To(Equal(int32(1)))
		Expect(locks.size()).To(Equal(0))
	})

	It("locks pairs in a stable order", func() {
		locks := newKeyLocks()
		var wg sync.WaitGroup

		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				var unlock func()
				if i%2 == 0 {
					unlock = locks.lockPair("o", "a", "b")
				} else {
					unlock = locks.lockPair("o", "b", "a")
				}
				unlock()
			}()
		}
		wg.Wait()

		Expect(locks.size()).To(Equal(0))
	})

	It("treats a self pair as one key", func() {
		locks := newKeyLocks()
		unlock := locks.lockPair("o", "a", "a")
		Expect(locks.size()).To(Equal(1))
		unlock()
		Expect(locks.size()).To(Equal(0))
	})
})
