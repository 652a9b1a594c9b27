// Package storagetest holds the behaviour every storage.Driver must share.
// Backend test suites call DescribeDriver with a constructor.
package storagetest

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/truthstore/pkg/merge"
	"github.com/papercomputeco/truthstore/pkg/observation"
	"github.com/papercomputeco/truthstore/pkg/reducer"
	"github.com/papercomputeco/truthstore/pkg/schema"
	"github.com/papercomputeco/truthstore/pkg/storage"
	"github.com/papercomputeco/truthstore/pkg/value"
)

var t0 = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

// Observation builds a test observation of owner "owner" for key.
func Observation(id, key string, at time.Duration, fields map[string]value.Value) *observation.Observation {
	return &observation.Observation{
		ID:               id,
		Key:              key,
		EntityType:       "company",
		OwnerScope:       "owner",
		Fields:           fields,
		SourcePriority:   observation.PriorityAgent,
		SpecificityScore: 0.5,
		ObservedAt:       t0.Add(at),
		CreatedAt:        t0.Add(at),
	}
}

// DescribeDriver registers the shared driver specs. newDriver is called
// before each spec; the driver is closed after it.
func DescribeDriver(newDriver func(ctx context.Context) storage.Driver) {
	var (
		ctx    context.Context
		driver storage.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = nil
		driver = newDriver(ctx)
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	Describe("entities", func() {
		It("stores, replaces and finds entities", func() {
			e := &storage.Entity{
				Key: "acme", Kind: observation.KindEntity, EntityType: "company",
				OwnerScope: "owner", CreatedAt: t0,
			}
			Expect(driver.PutEntity(ctx, e)).To(Succeed())

			e.MergedInto = "acme-2"
			Expect(driver.PutEntity(ctx, e)).To(Succeed())

			got, err := driver.GetEntity(ctx, "acme")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.MergedInto).To(Equal("acme-2"))
			Expect(got.CreatedAt).To(BeTemporally("==", t0))

			merged, err := driver.ListEntities(ctx, storage.EntityQuery{MergedInto: "acme-2"})
			Expect(err).NotTo(HaveOccurred())
			Expect(merged).To(HaveLen(1))
		})

		It("returns NotFoundError for unknown keys", func() {
			_, err := driver.GetEntity(ctx, "missing")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("filters relationships by endpoint", func() {
			for _, rel := range []struct{ src, dst string }{{"a", "b"}, {"b", "c"}, {"c", "a"}} {
				key := observation.RelationshipKey("works_with", rel.src, rel.dst)
				Expect(driver.PutEntity(ctx, &storage.Entity{
					Key: key, Kind: observation.KindRelationship, EntityType: "works_with",
					OwnerScope: "owner", SourceID: rel.src, TargetID: rel.dst, CreatedAt: t0,
				})).To(Succeed())
			}

			out, err := driver.ListEntities(ctx, storage.EntityQuery{
				OwnerScope: "owner", Kind: observation.KindRelationship, SourceIn: []string{"a", "b"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(2))
			Expect(out[0].Key).To(Equal("works_with:a:b"))
			Expect(out[1].Key).To(Equal("works_with:b:c"))
		})
	})

	Describe("observations", func() {
		It("round-trips fields and metadata", func() {
			o := Observation("obs-1", "acme", 0, map[string]value.Value{
				"name":    value.String("Acme"),
				"amount":  value.Number(150),
				"founded": value.Date(t0),
				"tags":    value.Array(value.String("b2b")),
			})
			o.IdempotencyKey = "idem-1"
			Expect(driver.InsertObservation(ctx, o)).To(Succeed())

			got, err := driver.GetObservation(ctx, "obs-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Fields).To(HaveLen(4))
			Expect(value.Equal(got.Fields["founded"], value.Date(t0))).To(BeTrue())
			Expect(got.Fields["tags"]).To(Equal(value.Array(value.String("b2b"))))
			Expect(got.ObservedAt).To(BeTemporally("==", t0))

			byIdem, err := driver.FindObservationByIdempotencyKey(ctx, "owner", "acme", "idem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(byIdem.ID).To(Equal("obs-1"))
		})

		It("rejects duplicate ids", func() {
			o := Observation("obs-1", "acme", 0, nil)
			Expect(driver.InsertObservation(ctx, o)).To(Succeed())
			Expect(driver.InsertObservation(ctx, o)).To(MatchError(storage.ErrDuplicate))
		})

		It("rekeys observations for one owner only", func() {
			Expect(driver.InsertObservation(ctx, Observation("o1", "a", 0, nil))).To(Succeed())
			Expect(driver.InsertObservation(ctx, Observation("o2", "a", time.Second, nil))).To(Succeed())
			other := Observation("o3", "a", 0, nil)
			other.OwnerScope = "other"
			Expect(driver.InsertObservation(ctx, other)).To(Succeed())

			n, err := driver.RekeyObservations(ctx, "owner", "a", "b")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))

			moved, err := driver.ListObservations(ctx, "owner", "b")
			Expect(err).NotTo(HaveOccurred())
			Expect(moved).To(HaveLen(2))

			left, err := driver.ListObservations(ctx, "other", "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(left).To(HaveLen(1))
		})
	})

	Describe("snapshots", func() {
		snapshot := func(key string, deleted bool) *reducer.Snapshot {
			return &reducer.Snapshot{
				Key: key, EntityType: "company", OwnerScope: "owner", SchemaVersion: "1.0.0",
				Fields:           map[string]value.Value{"name": value.String(key)},
				Provenance:       map[string][]string{"name": {"obs-" + key}},
				ObservationCount: 1, LastObservationAt: t0, ComputedAt: t0, Deleted: deleted,
			}
		}

		It("replaces snapshots wholesale", func() {
			Expect(driver.PutSnapshot(ctx, snapshot("acme", false))).To(Succeed())
			next := snapshot("acme", true)
			next.ObservationCount = 2
			Expect(driver.PutSnapshot(ctx, next)).To(Succeed())

			got, err := driver.GetSnapshot(ctx, "owner", "acme")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ObservationCount).To(Equal(2))
			Expect(got.Deleted).To(BeTrue())
			Expect(got.Provenance).To(Equal(map[string][]string{"name": {"obs-acme"}}))
		})

		It("lists live snapshots in key order with paging", func() {
			for _, k := range []string{"c", "a", "b"} {
				Expect(driver.PutSnapshot(ctx, snapshot(k, false))).To(Succeed())
			}
			Expect(driver.PutSnapshot(ctx, snapshot("d", true))).To(Succeed())

			all, err := driver.ListSnapshots(ctx, storage.SnapshotQuery{OwnerScope: "owner"})
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(3))
			Expect(all[0].Key).To(Equal("a"))

			withDeleted, err := driver.ListSnapshots(ctx, storage.SnapshotQuery{OwnerScope: "owner", IncludeDeleted: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(withDeleted).To(HaveLen(4))

			paged, err := driver.ListSnapshots(ctx, storage.SnapshotQuery{OwnerScope: "owner", Offset: 1, Limit: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(paged).To(HaveLen(1))
			Expect(paged[0].Key).To(Equal("b"))
		})

		It("deletes snapshots idempotently", func() {
			Expect(driver.PutSnapshot(ctx, snapshot("acme", false))).To(Succeed())
			Expect(driver.DeleteSnapshot(ctx, "owner", "acme")).To(Succeed())
			Expect(driver.DeleteSnapshot(ctx, "owner", "acme")).To(Succeed())

			_, err := driver.GetSnapshot(ctx, "owner", "acme")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("fragments", func() {
		It("accumulates identical fragments", func() {
			f := &observation.RawFragment{
				ID: "f1", OwnerScope: "owner", Key: "acme", FieldName: "nickname",
				Value: value.String("ACME"), TypeEnvelope: "string", Reason: observation.ReasonUnknownField,
				ObservationID: "o1", FrequencyCount: 1, FirstSeen: t0, LastSeen: t0,
			}
			Expect(driver.UpsertFragment(ctx, f)).To(Succeed())

			again := *f
			again.ID = "f2"
			again.ObservationID = "o2"
			again.FirstSeen = t0.Add(time.Hour)
			again.LastSeen = t0.Add(time.Hour)
			Expect(driver.UpsertFragment(ctx, &again)).To(Succeed())

			out, err := driver.ListFragments(ctx, "owner", "acme")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(1))
			Expect(out[0].ID).To(Equal("f1"))
			Expect(out[0].FrequencyCount).To(Equal(2))
			Expect(out[0].ObservationID).To(Equal("o2"))
			Expect(out[0].FirstSeen).To(BeTemporally("==", t0))
			Expect(out[0].LastSeen).To(BeTemporally("==", t0.Add(time.Hour)))

			Expect(driver.DeleteFragments(ctx, "owner", "acme")).To(Succeed())
			out, err = driver.ListFragments(ctx, "owner", "acme")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(BeEmpty())
		})
	})

	Describe("merge records", func() {
		It("stores and filters merge records", func() {
			Expect(driver.InsertMerge(ctx, &merge.Record{
				ID: "m1", OwnerScope: "owner", FromKey: "a", ToKey: "b",
				ObservationsRewritten: 3, CreatedAt: t0,
			})).To(Succeed())

			all, err := driver.ListMerges(ctx, "owner", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
			Expect(all[0].ObservationsRewritten).To(Equal(3))

			none, err := driver.ListMerges(ctx, "owner", "b")
			Expect(err).NotTo(HaveOccurred())
			Expect(none).To(BeEmpty())
		})
	})

	Describe("schemas", func() {
		def := func(version string) *schema.Definition {
			return &schema.Definition{
				Type: "company", Version: version,
				Fields:    map[string]schema.FieldDef{"name": {Type: schema.TypeString}},
				CreatedAt: t0,
			}
		}

		It("stores versions and activations", func() {
			Expect(driver.InsertSchema(ctx, def("1.0.0"))).To(Succeed())
			Expect(driver.InsertSchema(ctx, def("1.1.0"))).To(Succeed())
			Expect(driver.InsertSchema(ctx, def("1.0.0"))).To(MatchError(schema.ErrSchemaValidationFailed))

			list, err := driver.ListSchemas(ctx, "company", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(2))

			_, err = driver.GetActivation(ctx, "company", "")
			Expect(err).To(MatchError(schema.ErrSchemaNotFound))

			Expect(driver.PutActivation(ctx, &schema.Activation{Type: "company", Version: "1.0.0", ActivatedAt: t0})).To(Succeed())
			Expect(driver.PutActivation(ctx, &schema.Activation{Type: "company", Version: "1.1.0", ActivatedAt: t0})).To(Succeed())

			a, err := driver.GetActivation(ctx, "company", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Version).To(Equal("1.1.0"))

			Expect(driver.DeleteActivation(ctx, "company", "")).To(Succeed())
			_, err = driver.GetActivation(ctx, "company", "")
			Expect(err).To(MatchError(schema.ErrSchemaNotFound))

			_, err = driver.GetSchema(ctx, "company", "9.0.0", "")
			Expect(err).To(MatchError(schema.ErrSchemaNotFound))
		})
	})

	Describe("WithTx", func() {
		It("commits when fn succeeds", func() {
			err := driver.WithTx(ctx, func(tx storage.Store) error {
				return tx.InsertObservation(ctx, Observation("o1", "acme", 0, nil))
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = driver.GetObservation(ctx, "o1")
			Expect(err).NotTo(HaveOccurred())
		})

		It("rolls back when fn fails", func() {
			boom := errors.New("boom")
			err := driver.WithTx(ctx, func(tx storage.Store) error {
				if err := tx.InsertObservation(ctx, Observation("o1", "acme", 0, nil)); err != nil {
					return err
				}
				return boom
			})
			Expect(err).To(MatchError(boom))

			_, err = driver.GetObservation(ctx, "o1")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})
	})
}
