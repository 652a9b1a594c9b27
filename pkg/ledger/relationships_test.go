package ledger_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/truthstore/pkg/ledger"
	"github.com/papercomputeco/truthstore/pkg/merge"
	"github.com/papercomputeco/truthstore/pkg/observation"
	"github.com/papercomputeco/truthstore/pkg/value"
)

var _ = Describe("ListRelationships", func() {
	var f *fixture

	keys := func(rels []*ledger.Relationship) []string {
		out := make([]string, 0, len(rels))
		for _, r := range rels {
			out = append(out, r.Key)
		}
		return out
	}

	BeforeEach(func() {
		f = newFixture(false)
		DeferCleanup(f.ledger.Close)

		for _, k := range []string{"alice", "acme", "globex"} {
			f.submit(ledger.Submission{Key: k, EntityType: "party", Fields: fields("name", k)})
		}
		f.submit(ledger.Submission{
			Key: observation.RelationshipKey("works_at", "alice", "acme"), EntityType: "works_at",
			Fields: fields("role", "cto"),
		})
		f.submit(ledger.Submission{
			Key: observation.RelationshipKey("supplies", "globex", "acme"), EntityType: "supplies",
			Fields: fields("since", 2020),
		})
	})

	It("lists outgoing, incoming and both directions", func() {
		out, err := f.ledger.ListRelationships(f.ctx, owner, "alice", ledger.DirectionOutgoing)
		Expect(err).NotTo(HaveOccurred())
		Expect(keys(out)).To(Equal([]string{"works_at:alice:acme"}))
		Expect(out[0].Snapshot.Fields["role"]).To(Equal(value.String("cto")))
		Expect(out[0].SourceID).To(Equal("alice"))
		Expect(out[0].TargetID).To(Equal("acme"))

		in, err := f.ledger.ListRelationships(f.ctx, owner, "acme", ledger.DirectionIncoming)
		Expect(err).NotTo(HaveOccurred())
		Expect(keys(in)).To(Equal([]string{"supplies:globex:acme", "works_at:alice:acme"}))

		out, err = f.ledger.ListRelationships(f.ctx, owner, "acme", ledger.DirectionOutgoing)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(BeEmpty())

		both, err := f.ledger.ListRelationships(f.ctx, owner, "globex", ledger.DirectionBoth)
		Expect(err).NotTo(HaveOccurred())
		Expect(keys(both)).To(Equal([]string{"supplies:globex:acme"}))
	})

	It("includes relationships of entities merged into the key", func() {
		_, err := f.ledger.MergeEntities(f.ctx, merge.Request{OwnerScope: owner, FromKey: "globex", ToKey: "alice"})
		Expect(err).NotTo(HaveOccurred())

		rels, err := f.ledger.ListRelationships(f.ctx, owner, "alice", ledger.DirectionOutgoing)
		Expect(err).NotTo(HaveOccurred())
		Expect(keys(rels)).To(Equal([]string{"supplies:globex:acme", "works_at:alice:acme"}))
	})

	It("skips deleted relationships", func() {
		_, err := f.ledger.SoftDelete(f.ctx, owner, "works_at:alice:acme")
		Expect(err).NotTo(HaveOccurred())

		rels, err := f.ledger.ListRelationships(f.ctx, owner, "acme", ledger.DirectionIncoming)
		Expect(err).NotTo(HaveOccurred())
		Expect(keys(rels)).To(Equal([]string{"supplies:globex:acme"}))
	})

	It("rejects unknown keys and directions", func() {
		_, err := f.ledger.ListRelationships(f.ctx, owner, "nobody", ledger.DirectionBoth)
		Expect(err).To(MatchError(ledger.ErrEntityNotFound))

		_, err = f.ledger.ListRelationships(f.ctx, owner, "alice", ledger.Direction("sideways"))
		Expect(err).To(HaveOccurred())
	})

	DescribeTable("ParseDirection",
		func(in string, want ledger.Direction, ok bool) {
			d, err := ledger.ParseDirection(in)
			if !ok {
				Expect(err).To(HaveOccurred())
				return
			}
			Expect(err).NotTo(HaveOccurred())
			Expect(d).To(Equal(want))
		},
		Entry("empty", "", ledger.DirectionBoth, true),
		Entry("outgoing", "outgoing", ledger.DirectionOutgoing, true),
		Entry("incoming", "incoming", ledger.DirectionIncoming, true),
		Entry("unknown", "up", ledger.Direction(""), false),
	)
})
