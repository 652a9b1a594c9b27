package schema_test

import (
	"sort"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/truthstore/pkg/schema"
	"github.com/papercomputeco/truthstore/pkg/value"
)

func companyV1() *schema.Definition {
	return &schema.Definition{
		Type:    "company",
		Version: "1.0.0",
		Fields: map[string]schema.FieldDef{
			"name":   {Type: schema.TypeString, Required: true},
			"amount": {Type: schema.TypeNumber, Converters: []string{"string_to_number"}},
		},
		Policies: map[string]schema.MergePolicy{
			"name": {Strategy: schema.HighestPriority},
		},
	}
}

var _ = Describe("Definition", func() {
	It("validates a well formed definition", func() {
		Expect(companyV1().Validate()).To(Succeed())
	})

	DescribeTable("invalid definitions",
		func(mutate func(d *schema.Definition)) {
			d := companyV1()
			mutate(d)
			Expect(d.Validate()).To(MatchError(schema.ErrSchemaValidationFailed))
		},
		Entry("empty type", func(d *schema.Definition) { d.Type = "" }),
		Entry("bad version", func(d *schema.Definition) { d.Version = "one" }),
		Entry("unknown field type", func(d *schema.Definition) { d.Fields["x"] = schema.FieldDef{Type: "blob"} }),
		Entry("unknown converter", func(d *schema.Definition) {
			d.Fields["x"] = schema.FieldDef{Type: schema.TypeNumber, Converters: []string{"magic"}}
		}),
		Entry("converter producing the wrong type", func(d *schema.Definition) {
			d.Fields["x"] = schema.FieldDef{Type: schema.TypeDate, Converters: []string{"string_to_number"}}
		}),
		Entry("policy on undefined field", func(d *schema.Definition) {
			d.Policies["ghost"] = schema.MergePolicy{Strategy: schema.LastWrite}
		}),
		Entry("unknown strategy", func(d *schema.Definition) {
			d.Policies["amount"] = schema.MergePolicy{Strategy: "average"}
		}),
		Entry("unknown tie breaker", func(d *schema.Definition) {
			d.Policies["amount"] = schema.MergePolicy{Strategy: schema.LastWrite, TieBreaker: "coin_flip"}
		}),
		Entry("non boolean tombstone field", func(d *schema.Definition) {
			d.Fields["deleted"] = schema.FieldDef{Type: schema.TypeString}
		}),
		Entry("tombstone field without highest_priority", func(d *schema.Definition) {
			d.Fields["deleted"] = schema.FieldDef{Type: schema.TypeBoolean}
			d.Policies["deleted"] = schema.MergePolicy{Strategy: schema.LastWrite}
		}),
	)

	It("defaults unknown fields to last_write and pins the tombstone policy", func() {
		var nilDef *schema.Definition
		Expect(nilDef.PolicyFor("anything").Strategy).To(Equal(schema.LastWrite))
		Expect(companyV1().PolicyFor("name").Strategy).To(Equal(schema.HighestPriority))
		Expect(companyV1().PolicyFor("deleted").Strategy).To(Equal(schema.HighestPriority))
	})

	It("clones deeply", func() {
		d := companyV1()
		cp := d.Clone()
		cp.Fields["extra"] = schema.FieldDef{Type: schema.TypeString}
		Expect(d.Fields).NotTo(HaveKey("extra"))
	})
})

var _ = Describe("FieldType", func() {
	It("accepts null for every type and anything for any", func() {
		Expect(schema.TypeNumber.Accepts(value.KindNull)).To(BeTrue())
		Expect(schema.TypeNumber.Accepts(value.KindString)).To(BeFalse())
		Expect(schema.TypeAny.Accepts(value.KindObject)).To(BeTrue())
	})
})

var _ = Describe("Version", func() {
	It("parses and orders versions", func() {
		v, err := schema.ParseVersion("v1.2.3")
		Expect(err).NotTo(HaveOccurred())
		Expect(v.String()).To(Equal("1.2.3"))
		Expect(schema.MustParseVersion("1.10.0").Compare(schema.MustParseVersion("1.9.9"))).To(Equal(1))
		Expect(v.NextMinor().String()).To(Equal("1.3.0"))
	})

	It("rejects malformed versions", func() {
		_, err := schema.ParseVersion("1.2")
		Expect(err).To(HaveOccurred())
		_, err = schema.ParseVersion("1.x.0")
		Expect(err).To(HaveOccurred())
		_, err = schema.ParseVersion("1.2.0-beta.1")
		Expect(err).To(HaveOccurred())
		_, err = schema.ParseVersion("01.2.0")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Converters", func() {
	convert := func(name string, in value.Value) (value.Value, bool, error) {
		c, ok := schema.LookupConverter(name)
		Expect(ok).To(BeTrue())
		return schema.FieldDef{Type: c.To, Converters: []string{name}}.Convert(in)
	}

	It("converts formatted numbers", func() {
		out, ok, err := convert("string_to_number", value.String(" 1,500.5 "))
		Expect(ok).To(BeTrue())
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(value.Number(1500.5)))
	})

	It("reports failures of an applicable converter", func() {
		_, ok, err := convert("string_to_number", value.String("lots"))
		Expect(ok).To(BeTrue())
		Expect(err).To(MatchError(schema.ErrConversion))
	})

	DescribeTable("rejects strings that parse to non-finite numbers",
		func(in string) {
			_, ok, err := convert("string_to_number", value.String(in))
			Expect(ok).To(BeTrue())
			Expect(err).To(MatchError(schema.ErrConversion))
		},
		Entry("NaN", "NaN"),
		Entry("Inf", "Inf"),
		Entry("negative infinity", "-Infinity"),
		Entry("overflow", "1e400"),
	)

	It("skips converters for other source kinds", func() {
		_, ok, _ := convert("string_to_number", value.Bool(true))
		Expect(ok).To(BeFalse())
	})

	It("parses dates and booleans", func() {
		out, _, err := convert("string_to_date", value.String("2001-02-03"))
		Expect(err).NotTo(HaveOccurred())
		t, _ := out.AsDate()
		Expect(t.Year()).To(Equal(2001))

		out, _, err = convert("string_to_boolean", value.String("Yes"))
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(value.Bool(true)))
	})

	It("lists converter names sorted", func() {
		names := schema.ConverterNames()
		Expect(names).To(ContainElement("number_to_date"))
		Expect(sort.StringsAreSorted(names)).To(BeTrue())
	})
})
