package schema_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/truthstore/pkg/logger"
	"github.com/papercomputeco/truthstore/pkg/schema"
	"github.com/papercomputeco/truthstore/pkg/storage/inmemory"
)

var _ = Describe("Registry", func() {
	var (
		ctx      context.Context
		registry *schema.Registry
		now      time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		registry = schema.NewRegistry(inmemory.NewDriver(), logger.Nop(), schema.WithClock(func() time.Time { return now }))
	})

	register := func(d *schema.Definition) *schema.Definition {
		out, err := registry.Register(ctx, d)
		Expect(err).NotTo(HaveOccurred())
		return out
	}

	Describe("Register", func() {
		It("stores a normalized copy stamped with the clock", func() {
			d := companyV1()
			d.Version = "v1.0.0"
			out := register(d)
			Expect(out.Version).To(Equal("1.0.0"))
			Expect(out.CreatedAt).To(Equal(now))
		})

		It("rejects a duplicate version", func() {
			register(companyV1())
			_, err := registry.Register(ctx, companyV1())
			Expect(err).To(MatchError(schema.ErrSchemaValidationFailed))
		})

		It("rejects versions that do not advance", func() {
			d := companyV1()
			d.Version = "2.0.0"
			register(d)

			_, err := registry.Register(ctx, companyV1())
			Expect(err).To(MatchError(schema.ErrSchemaVersionConflict))
		})

		It("rejects a minor bump that removes a field", func() {
			register(companyV1())
			d := companyV1()
			d.Version = "1.1.0"
			delete(d.Fields, "amount")

			_, err := registry.Register(ctx, d)
			Expect(err).To(MatchError(schema.ErrSchemaVersionConflict))
		})

		It("rejects a patch bump that retypes a field", func() {
			register(companyV1())
			d := companyV1()
			d.Version = "1.0.1"
			d.Fields["amount"] = schema.FieldDef{Type: schema.TypeString}

			_, err := registry.Register(ctx, d)
			Expect(err).To(MatchError(schema.ErrSchemaVersionConflict))
		})

		It("allows removals on a major bump", func() {
			register(companyV1())
			d := companyV1()
			d.Version = "2.0.0"
			delete(d.Fields, "amount")
			register(d)
		})

		It("keeps owner scopes apart", func() {
			register(companyV1())
			d := companyV1()
			d.OwnerScope = "owner-1"
			register(d)
		})
	})

	Describe("Activate and LoadActive", func() {
		It("fails when nothing is active", func() {
			register(companyV1())
			_, err := registry.LoadActive(ctx, "company", "owner-1")
			Expect(err).To(MatchError(schema.ErrSchemaNotFound))
		})

		It("cannot activate an unknown version", func() {
			_, err := registry.Activate(ctx, "company", "1.0.0", "")
			Expect(err).To(MatchError(schema.ErrSchemaNotFound))
		})

		It("falls back from the owner scope to the global schema", func() {
			register(companyV1())
			_, err := registry.Activate(ctx, "company", "1.0.0", "")
			Expect(err).NotTo(HaveOccurred())

			def, err := registry.LoadActive(ctx, "company", "owner-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(def.OwnerScope).To(BeEmpty())

			owned := companyV1()
			owned.OwnerScope = "owner-1"
			owned.Version = "3.0.0"
			register(owned)
			_, err = registry.Activate(ctx, "company", "3.0.0", "owner-1")
			Expect(err).NotTo(HaveOccurred())

			def, err = registry.LoadActive(ctx, "company", "owner-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(def.Version).To(Equal("3.0.0"))

			def, err = registry.LoadActive(ctx, "company", "owner-2")
			Expect(err).NotTo(HaveOccurred())
			Expect(def.Version).To(Equal("1.0.0"))
		})

		It("replaces the previous activation", func() {
			register(companyV1())
			v2 := companyV1()
			v2.Version = "1.1.0"
			register(v2)

			_, err := registry.Activate(ctx, "company", "1.0.0", "")
			Expect(err).NotTo(HaveOccurred())
			a, err := registry.Activate(ctx, "company", "1.1.0", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(a.ActivatedAt).To(Equal(now))

			def, err := registry.LoadActive(ctx, "company", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(def.Version).To(Equal("1.1.0"))
		})

		It("deactivates only the active version", func() {
			register(companyV1())
			_, err := registry.Activate(ctx, "company", "1.0.0", "")
			Expect(err).NotTo(HaveOccurred())

			Expect(registry.Deactivate(ctx, "company", "1.1.0", "")).To(MatchError(schema.ErrSchemaVersionConflict))
			Expect(registry.Deactivate(ctx, "company", "1.0.0", "")).To(Succeed())

			_, err = registry.LoadActive(ctx, "company", "")
			Expect(err).To(MatchError(schema.ErrSchemaNotFound))
		})
	})

	Describe("UpdateIncremental", func() {
		BeforeEach(func() {
			register(companyV1())
			_, err := registry.Activate(ctx, "company", "1.0.0", "")
			Expect(err).NotTo(HaveOccurred())
		})

		It("adds optional fields as the next minor version and activates it", func() {
			def, err := registry.UpdateIncremental(ctx, "company", "",
				map[string]schema.FieldDef{"tax_id": {Type: schema.TypeString, Required: true}},
				map[string]schema.MergePolicy{"tax_id": {Strategy: schema.HighestPriority}},
			)
			Expect(err).NotTo(HaveOccurred())
			Expect(def.Version).To(Equal("1.1.0"))
			Expect(def.Fields["tax_id"].Required).To(BeFalse())

			active, err := registry.LoadActive(ctx, "company", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(active.Version).To(Equal("1.1.0"))
			Expect(active.PolicyFor("tax_id").Strategy).To(Equal(schema.HighestPriority))
		})

		It("is a no-op when the field already exists with the same type", func() {
			def, err := registry.UpdateIncremental(ctx, "company", "",
				map[string]schema.FieldDef{"name": {Type: schema.TypeString}}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(def.Version).To(Equal("1.0.0"))

			versions, err := registry.List(ctx, "company", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(versions).To(HaveLen(1))
		})

		It("rejects a conflicting field type", func() {
			_, err := registry.UpdateIncremental(ctx, "company", "",
				map[string]schema.FieldDef{"amount": {Type: schema.TypeString}}, nil)
			Expect(err).To(MatchError(schema.ErrSchemaVersionConflict))
		})

		It("derives an owner scoped version from the global schema", func() {
			def, err := registry.UpdateIncremental(ctx, "company", "owner-1",
				map[string]schema.FieldDef{"region": {Type: schema.TypeString}}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(def.OwnerScope).To(Equal("owner-1"))
			Expect(def.Version).To(Equal("1.1.0"))

			global, err := registry.LoadActive(ctx, "company", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(global.Fields).NotTo(HaveKey("region"))
		})

		It("requires an active schema", func() {
			_, err := registry.UpdateIncremental(ctx, "person", "",
				map[string]schema.FieldDef{"name": {Type: schema.TypeString}}, nil)
			Expect(err).To(MatchError(schema.ErrSchemaNotFound))
		})
	})

	Describe("List", func() {
		It("returns versions oldest first", func() {
			for _, v := range []string{"1.0.0", "1.2.0", "1.10.0"} {
				d := companyV1()
				d.Version = v
				register(d)
			}
			defs, err := registry.List(ctx, "company", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(defs).To(HaveLen(3))
			Expect(defs[2].Version).To(Equal("1.10.0"))
		})
	})
})
