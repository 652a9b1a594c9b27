package mcp

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/truthstore/pkg/ledger"
	"github.com/papercomputeco/truthstore/pkg/logger"
	"github.com/papercomputeco/truthstore/pkg/storage/inmemory"
)

var _ = Describe("Truth store tools", func() {
	var (
		server *Server
		ctx    context.Context
	)

	BeforeEach(func() {
		l, err := ledger.New(&ledger.Config{Driver: inmemory.NewDriver()})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(l.Close)

		server, err = NewServer(Config{Ledger: l, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	})

	submit := func(name string, priority int) {
		res, out, err := server.handleSubmitObservation(ctx, nil, SubmitObservationInput{
			OwnerScope:     "owner-1",
			Key:            "acme",
			EntityType:     "company",
			Fields:         map[string]any{"name": name, "employees": 12},
			SourcePriority: priority,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.IsError).To(BeFalse())
		Expect(out.ObservationID).NotTo(BeEmpty())
	}

	Describe("get_snapshot", func() {
		It("returns plain field values", func() {
			submit("Acme", 0)

			res, out, err := server.handleGetSnapshot(ctx, nil, SnapshotInput{OwnerScope: "owner-1", Key: "acme"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(out.EntityType).To(Equal("company"))
			Expect(out.Fields).To(HaveKeyWithValue("name", "Acme"))
			Expect(out.Fields).To(HaveKeyWithValue("employees", BeNumerically("==", 12)))
			Expect(out.ObservationCount).To(Equal(1))
		})

		It("reports unknown keys as tool errors", func() {
			res, _, err := server.handleGetSnapshot(ctx, nil, SnapshotInput{OwnerScope: "owner-1", Key: "nope"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
		})
	})

	Describe("get_provenance", func() {
		It("lists the contributing observations", func() {
			submit("Acme", 0)

			res, out, err := server.handleGetProvenance(ctx, nil, ProvenanceInput{OwnerScope: "owner-1", Key: "acme", Field: "name"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(out.Value).To(Equal("Acme"))
			Expect(out.Observations).To(HaveLen(1))
			Expect(out.Observations[0].SourcePriority).To(Equal(100))
		})
	})

	Describe("request_correction", func() {
		It("overrides agent observations", func() {
			submit("Acme", 500)

			res, _, err := server.handleRequestCorrection(ctx, nil, CorrectionInput{
				OwnerScope: "owner-1",
				Key:        "acme",
				Fields:     map[string]any{"name": "Acme Corporation"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())

			_, out, err := server.handleGetSnapshot(ctx, nil, SnapshotInput{OwnerScope: "owner-1", Key: "acme"})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Fields).To(HaveKeyWithValue("name", "Acme Corporation"))
		})

		It("rejects corrections without an owner", func() {
			res, _, err := server.handleRequestCorrection(ctx, nil, CorrectionInput{
				Key:    "acme",
				Fields: map[string]any{"name": "x"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
		})
	})
})
