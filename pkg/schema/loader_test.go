package schema_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/truthstore/pkg/logger"
	"github.com/papercomputeco/truthstore/pkg/schema"
	"github.com/papercomputeco/truthstore/pkg/storage/inmemory"
)

const companyYAML = `type: company
version: 1.0.0
activate: true
fields:
  name: {type: string, required: true}
  amount: {type: number, converters: [string_to_number]}
merge_policies:
  name: {strategy: highest_priority, tie_breaker: specificity}
`

const companyTOML = `type = "company"
version = "1.1.0"
activate = true

[fields.name]
type = "string"
required = true

[fields.amount]
type = "number"
converters = ["string_to_number"]

[fields.tags]
type = "array"

[merge_policies.tags]
strategy = "merge_array"
`

var _ = Describe("Loader", func() {
	var (
		ctx      context.Context
		registry *schema.Registry
		dir      string
	)

	BeforeEach(func() {
		ctx = context.Background()
		registry = schema.NewRegistry(inmemory.NewDriver(), logger.Nop())
		dir = GinkgoT().TempDir()
	})

	It("parses YAML files", func() {
		f, err := schema.ParseFile("company.yaml", []byte(companyYAML))
		Expect(err).NotTo(HaveOccurred())
		def := f.Definition()
		Expect(def.Fields["amount"].Converters).To(Equal([]string{"string_to_number"}))
		Expect(def.Policies["name"]).To(Equal(schema.MergePolicy{
			Strategy: schema.HighestPriority, TieBreaker: schema.TieSpecificity,
		}))
		Expect(f.Activate).To(BeTrue())
	})

	It("parses TOML files", func() {
		f, err := schema.ParseFile("company.toml", []byte(companyTOML))
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Fields).To(HaveLen(3))
		Expect(f.Policies["tags"].Strategy).To(Equal(schema.MergeArray))
	})

	It("rejects unknown extensions", func() {
		_, err := schema.ParseFile("company.json", []byte("{}"))
		Expect(err).To(HaveOccurred())
	})

	It("applies a directory in file name order and is idempotent", func() {
		Expect(os.WriteFile(filepath.Join(dir, "01-company.yaml"), []byte(companyYAML), 0o600)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "02-company.toml"), []byte(companyTOML), 0o600)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o600)).To(Succeed())

		applied, err := registry.ApplyDir(ctx, dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(applied).To(HaveLen(2))

		active, err := registry.LoadActive(ctx, "company", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(active.Version).To(Equal("1.1.0"))

		again, err := registry.ApplyDir(ctx, dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(again).To(HaveLen(2))
	})
})

var _ = Describe("Watcher", func() {
	It("applies schema files written into the watched directory", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dir := GinkgoT().TempDir()
		registry := schema.NewRegistry(inmemory.NewDriver(), logger.Nop())
		applied := make(chan *schema.Definition, 4)
		watcher := schema.NewWatcher(registry, dir, logger.Nop(), applied)

		done := make(chan error, 1)
		go func() { done <- watcher.Run(ctx) }()

		// Rewrite until the watcher has picked the directory up.
		var def *schema.Definition
		Eventually(func() bool {
			if err := os.WriteFile(filepath.Join(dir, "company.yaml"), []byte(companyYAML), 0o600); err != nil {
				return false
			}
			select {
			case def = <-applied:
				return true
			case <-time.After(100 * time.Millisecond):
				return false
			}
		}, 5*time.Second).Should(BeTrue())
		Expect(def.Type).To(Equal("company"))

		active, err := registry.LoadActive(ctx, "company", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(active.Version).To(Equal("1.0.0"))

		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})
})
