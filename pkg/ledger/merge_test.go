package ledger_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/truthstore/pkg/eventstream"
	"github.com/papercomputeco/truthstore/pkg/ledger"
	"github.com/papercomputeco/truthstore/pkg/merge"
	"github.com/papercomputeco/truthstore/pkg/value"
)

var _ = Describe("MergeEntities", func() {
	var f *fixture

	BeforeEach(func() {
		f = newFixture(false)
		DeferCleanup(f.ledger.Close)
		f.activate(companySchema())

		f.submit(ledger.Submission{Key: "A", EntityType: "company", Fields: fields("name", "Acme", "tax_id", "DE-1"), ObservedAt: at(0)})
		f.submit(ledger.Submission{Key: "B", EntityType: "company", Fields: fields("name", "Acme Corp"), ObservedAt: at(1)})
	})

	mergeAB := func() *merge.Record {
		rec, err := f.ledger.MergeEntities(f.ctx, merge.Request{
			OwnerScope: owner, FromKey: "A", ToKey: "B", Reason: "duplicate", Actor: "ops",
		})
		Expect(err).NotTo(HaveOccurred())
		return rec
	}

	It("moves observations onto the target and redirects the source", func() {
		rec := mergeAB()
		Expect(rec.ObservationsRewritten).To(Equal(1))
		Expect(rec.ID).NotTo(BeEmpty())

		snap, err := f.ledger.GetSnapshot(f.ctx, owner, "B", ledger.GetOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Fields["tax_id"]).To(Equal(value.String("DE-1")))
		Expect(snap.Fields["name"]).To(Equal(value.String("Acme Corp")))
		Expect(snap.ObservationCount).To(Equal(2))

		_, err = f.ledger.GetSnapshot(f.ctx, owner, "A", ledger.GetOptions{})
		Expect(err).To(MatchError(ledger.ErrEntityMerged))
		var merged *ledger.MergedError
		Expect(errors.As(err, &merged)).To(BeTrue())
		Expect(merged.Target).To(Equal("B"))

		snaps, err := f.ledger.ListSnapshots(f.ctx, owner, ledger.ListQuery{})
		Expect(err).NotTo(HaveOccurred())
		Expect(snaps).To(HaveLen(1))
		Expect(snaps[0].Key).To(Equal("B"))
	})

	It("redirects later submissions to the target", func() {
		mergeAB()

		id := f.submit(ledger.Submission{Key: "A", Fields: fields("tax_id", "DE-2"), ObservedAt: at(5)})

		history, err := f.ledger.History(f.ctx, owner, "B")
		Expect(err).NotTo(HaveOccurred())
		Expect(history[0].ID).To(Equal(id))
		Expect(history[0].Key).To(Equal("B"))

		snap, err := f.ledger.GetSnapshot(f.ctx, owner, "B", ledger.GetOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Fields["tax_id"]).To(Equal(value.String("DE-2")))
	})

	It("keeps idempotency keys working across the merge", func() {
		first := f.submit(ledger.Submission{Key: "A", Fields: fields("tax_id", "DE-1"), IdempotencyKey: "idem"})
		mergeAB()

		again := f.submit(ledger.Submission{Key: "A", Fields: fields("tax_id", "DE-1"), IdempotencyKey: "idem"})
		Expect(again).To(Equal(first))
	})

	It("moves raw fragments to the target", func() {
		f.submit(ledger.Submission{Key: "A", Fields: fields("nickname", "acme")})
		mergeAB()

		frags, err := f.ledger.Fragments(f.ctx, owner, "B")
		Expect(err).NotTo(HaveOccurred())
		Expect(frags).To(HaveLen(1))
		Expect(frags[0].Key).To(Equal("B"))
	})

	It("flattens earlier merges so every alias points at the final target", func() {
		mergeAB()
		f.submit(ledger.Submission{Key: "C", EntityType: "company", Fields: fields("name", "Acme Group")})

		_, err := f.ledger.MergeEntities(f.ctx, merge.Request{OwnerScope: owner, FromKey: "B", ToKey: "C"})
		Expect(err).NotTo(HaveOccurred())

		_, err = f.ledger.GetSnapshot(f.ctx, owner, "A", ledger.GetOptions{})
		var merged *ledger.MergedError
		Expect(errors.As(err, &merged)).To(BeTrue())
		Expect(merged.Target).To(Equal("C"))

		snap, err := f.ledger.GetSnapshot(f.ctx, owner, "C", ledger.GetOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.ObservationCount).To(Equal(3))
	})

	It("publishes a merge event keyed by the target", func() {
		rec := mergeAB()

		events := f.publisher.ofType(eventstream.EventTypeMergeCompleted)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Key).To(Equal("B"))
		Expect(events[0].Merge.MergeID).To(Equal(rec.ID))
		Expect(events[0].Merge.ObservationsRewritten).To(Equal(1))
	})

	DescribeTable("rejects invalid merges",
		func(setup func(f *fixture), req merge.Request, want error) {
			if setup != nil {
				setup(f)
			}
			_, err := f.ledger.MergeEntities(f.ctx, req)
			Expect(err).To(MatchError(want))
		},
		Entry("self merge", nil,
			merge.Request{OwnerScope: owner, FromKey: "A", ToKey: "A"}, ledger.ErrSelfMerge),
		Entry("unknown source", nil,
			merge.Request{OwnerScope: owner, FromKey: "Z", ToKey: "B"}, ledger.ErrEntityNotFound),
		Entry("empty target", nil,
			merge.Request{OwnerScope: owner, FromKey: "A"}, ledger.ErrInvalidMergeRequest),
		Entry("another owner's entity",
			func(f *fixture) {
				f.submit(ledger.Submission{OwnerScope: "owner-2", Key: "X", EntityType: "company", Fields: fields("name", "X")})
			},
			merge.Request{OwnerScope: owner, FromKey: "A", ToKey: "X"}, ledger.ErrCrossOwnerMerge),
		Entry("different types",
			func(f *fixture) {
				f.submit(ledger.Submission{Key: "P", EntityType: "person", Fields: fields("name", "Pat")})
			},
			merge.Request{OwnerScope: owner, FromKey: "A", ToKey: "P"}, ledger.ErrEntityTypeMismatch),
		Entry("source already merged",
			func(f *fixture) {
				f.submit(ledger.Submission{Key: "C", EntityType: "company", Fields: fields("name", "C")})
				_, err := f.ledger.MergeEntities(f.ctx, merge.Request{OwnerScope: owner, FromKey: "A", ToKey: "C"})
				Expect(err).NotTo(HaveOccurred())
			},
			merge.Request{OwnerScope: owner, FromKey: "A", ToKey: "B"}, ledger.ErrAlreadyMerged),
		Entry("target already merged",
			func(f *fixture) {
				_, err := f.ledger.MergeEntities(f.ctx, merge.Request{OwnerScope: owner, FromKey: "B", ToKey: "A"})
				Expect(err).NotTo(HaveOccurred())
				f.submit(ledger.Submission{Key: "C", EntityType: "company", Fields: fields("name", "C")})
			},
			merge.Request{OwnerScope: owner, FromKey: "C", ToKey: "B"}, ledger.ErrMergeTargetAlreadyMerged),
		Entry("missing owner", nil,
			merge.Request{FromKey: "A", ToKey: "B"}, ledger.ErrInvalidMergeRequest),
	)
})
