package ledger_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/truthstore/pkg/ledger"
	"github.com/papercomputeco/truthstore/pkg/value"
)

var _ = Describe("async recompute", func() {
	var f *fixture

	BeforeEach(func() {
		f = newFixture(true)
	})

	It("converges once the pool drains", func() {
		for i := range 10 {
			f.submit(ledger.Submission{Key: "inv-1", EntityType: "invoice", Fields: fields("amount", i), ObservedAt: at(i)})
		}
		f.ledger.Close()

		snap, err := f.ledger.GetSnapshot(f.ctx, owner, "inv-1", ledger.GetOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Fields["amount"]).To(Equal(value.Number(9)))
		Expect(snap.ObservationCount).To(Equal(10))
	})

	It("serves fresh reads before the pool catches up", func() {
		DeferCleanup(f.ledger.Close)
		f.submit(ledger.Submission{Key: "inv-1", EntityType: "invoice", Fields: fields("amount", 7)})

		snap, err := f.ledger.GetSnapshot(f.ctx, owner, "inv-1", ledger.GetOptions{Fresh: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Fields["amount"]).To(Equal(value.Number(7)))
	})

	It("recomputes corrections synchronously", func() {
		DeferCleanup(f.ledger.Close)
		f.submit(ledger.Submission{Key: "inv-1", EntityType: "invoice", Fields: fields("amount", 1), Sync: true})
		_, err := f.ledger.RequestCorrection(f.ctx, ledger.Correction{OwnerScope: owner, Key: "inv-1", Fields: fields("amount", 2)})
		Expect(err).NotTo(HaveOccurred())

		snap, err := f.ledger.GetSnapshot(f.ctx, owner, "inv-1", ledger.GetOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Fields["amount"]).To(Equal(value.Number(2)))
	})

	It("handles concurrent writers to many keys", func() {
		var wg sync.WaitGroup
		for w := range 8 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				key := []string{"a", "b", "c", "d"}[w%4]
				for i := range 5 {
					_, err := f.ledger.SubmitObservation(f.ctx, ledger.Submission{
						OwnerScope: owner, Key: key, EntityType: "counter",
						Fields: fields("n", w*10+i), ObservedAt: at(w*10 + i),
					})
					Expect(err).NotTo(HaveOccurred())
				}
			}()
		}
		wg.Wait()
		f.ledger.Close()

		snaps, err := f.ledger.ListSnapshots(f.ctx, owner, ledger.ListQuery{EntityType: "counter"})
		Expect(err).NotTo(HaveOccurred())
		Expect(snaps).To(HaveLen(4))
		for _, s := range snaps {
			Expect(s.ObservationCount).To(Equal(10))
		}
	})
})
