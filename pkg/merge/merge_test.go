package merge_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/truthstore/pkg/merge"
)

var _ = Describe("Check", func() {
	side := func(key string) merge.Side {
		return merge.Side{Key: key, OwnerScope: "owner", EntityType: "company"}
	}

	It("accepts a merge between two live entities of one owner", func() {
		Expect(merge.Check("owner", side("a"), side("b"))).To(Succeed())
	})

	DescribeTable("rejections",
		func(mutate func(from, to *merge.Side), want error) {
			from, to := side("a"), side("b")
			mutate(&from, &to)
			Expect(merge.Check("owner", from, to)).To(MatchError(want))
		},
		Entry("self merge", func(from, to *merge.Side) { to.Key = "a" }, merge.ErrSelfMerge),
		Entry("empty key", func(from, to *merge.Side) { from.Key = "" }, merge.ErrInvalidRequest),
		Entry("cross owner", func(from, to *merge.Side) { to.OwnerScope = "other" }, merge.ErrCrossOwnerMerge),
		Entry("type mismatch", func(from, to *merge.Side) { to.EntityType = "person" }, merge.ErrEntityTypeMismatch),
		Entry("source merged away", func(from, to *merge.Side) { from.MergedInto = "c" }, merge.ErrAlreadyMerged),
		Entry("source already merged out", func(from, to *merge.Side) { from.Outbound = true }, merge.ErrAlreadyMerged),
		Entry("target merged away", func(from, to *merge.Side) { to.MergedInto = "c" }, merge.ErrMergeTargetAlreadyMerged),
	)
})
