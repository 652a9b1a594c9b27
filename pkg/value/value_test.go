package value_test

import (
	"encoding/json"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/truthstore/pkg/value"
)

var _ = Describe("Value", func() {
	Describe("Compare", func() {
		It("orders by kind before content", func() {
			Expect(value.Compare(value.String("z"), value.Number(1))).To(Equal(-1))
			Expect(value.Compare(value.Null(), value.String(""))).To(Equal(-1))
		})

		It("orders numbers numerically", func() {
			Expect(value.Compare(value.Number(2), value.Number(10))).To(Equal(-1))
			Expect(value.Compare(value.Number(10), value.Number(10))).To(Equal(0))
		})

		It("treats objects with the same members as equal regardless of construction order", func() {
			a := value.Object(map[string]value.Value{"a": value.Number(1), "b": value.String("x")})
			b := value.Object(map[string]value.Value{"b": value.String("x"), "a": value.Number(1)})
			Expect(value.Equal(a, b)).To(BeTrue())
			Expect(a.Canonical()).To(Equal(b.Canonical()))
		})

		It("encodes negative zero the same as zero", func() {
			neg := value.Number(math.Copysign(0, -1))
			Expect(value.Equal(neg, value.Number(0))).To(BeTrue())
			Expect(neg.Canonical()).To(Equal(value.Number(0).Canonical()))

			set := []value.Value{neg, value.Number(0)}
			value.Sort(set)
			Expect(set[0].Canonical()).To(Equal(set[1].Canonical()))
		})

		It("distinguishes a date from its string rendering", func() {
			ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
			Expect(value.Equal(value.Date(ts), value.String(ts.Format(time.RFC3339Nano)))).To(BeFalse())
		})

		It("sorts a mixed slice deterministically", func() {
			vs := []value.Value{value.String("b"), value.Number(3), value.String("a"), value.Bool(true)}
			value.Sort(vs)
			Expect(vs[0]).To(Equal(value.String("a")))
			Expect(vs[1]).To(Equal(value.String("b")))
			Expect(vs[2]).To(Equal(value.Number(3)))
			Expect(vs[3]).To(Equal(value.Bool(true)))
		})
	})

	Describe("Valid", func() {
		It("rejects non-finite numbers, including nested ones", func() {
			Expect(value.Number(math.NaN()).Valid()).To(BeFalse())
			Expect(value.Array(value.Number(math.Inf(1))).Valid()).To(BeFalse())
			Expect(value.Number(1.5).Valid()).To(BeTrue())
		})
	})

	Describe("FromAny", func() {
		It("converts decoded JSON", func() {
			var raw any
			Expect(json.Unmarshal([]byte(`{"n":1,"s":"x","l":[true,null]}`), &raw)).To(Succeed())

			v, err := value.FromAny(raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(v.Kind()).To(Equal(value.KindObject))

			obj, _ := v.AsObject()
			Expect(obj["n"]).To(Equal(value.Number(1)))
			list, ok := obj["l"].AsArray()
			Expect(ok).To(BeTrue())
			Expect(list).To(HaveLen(2))
			Expect(list[1].IsNull()).To(BeTrue())
		})

		It("rejects unsupported types", func() {
			_, err := value.FromAny(struct{}{})
			Expect(err).To(MatchError(value.ErrUnsupported))
		})
	})

	Describe("tagged encoding", func() {
		It("round trips every kind", func() {
			ts := time.Date(2024, 5, 6, 7, 8, 9, 10, time.UTC)
			fields := map[string]value.Value{
				"null":   value.Null(),
				"string": value.String("acme"),
				"number": value.Number(150),
				"bool":   value.Bool(true),
				"date":   value.Date(ts),
				"array":  value.Array(value.String("a"), value.Number(2)),
				"object": value.Object(map[string]value.Value{"k": value.Date(ts)}),
			}

			data, err := value.EncodeFields(fields)
			Expect(err).NotTo(HaveOccurred())

			decoded, err := value.DecodeFields(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded).To(HaveLen(len(fields)))
			for name, v := range fields {
				Expect(value.Equal(decoded[name], v)).To(BeTrue(), name)
			}
		})

		It("refuses to encode non-finite numbers", func() {
			_, err := value.EncodeFields(map[string]value.Value{"x": value.Number(math.NaN())})
			Expect(err).To(MatchError(value.ErrUnsupported))
		})
	})

	Describe("plain JSON", func() {
		It("renders dates as RFC 3339 strings", func() {
			ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			data, err := json.Marshal(value.Date(ts))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal(`"2024-01-01T00:00:00Z"`))
		})
	})
})
