package servecmder_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	truthstorecmder "github.com/papercomputeco/truthstore/cmd/truthstore"
	servecmder "github.com/papercomputeco/truthstore/cmd/truthstore/serve"
)

const companyYAML = `type: company
version: 1.0.0
activate: true
fields:
  name: {type: string, required: true}
`

var _ = Describe("NewServeCmd", func() {
	It("registers the server flags", func() {
		cmd := servecmder.NewServeCmd()
		for _, name := range []string{
			"listen", "storage-driver", "sqlite", "postgres-dsn",
			"async", "workers", "queue-size",
			"eventstream-provider", "eventstream-brokers", "eventstream-topic",
			"schema-dir", "schema-watch",
		} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
	})

	It("rejects positional arguments", func() {
		cmd := servecmder.NewServeCmd()
		Expect(cmd.Args(cmd, []string{"extra"})).To(HaveOccurred())
	})
})

var _ = Describe("serve", func() {
	var (
		configDir string
		schemaDir string
	)

	// serve reads the persistent flags of the root command.
	execute := func(timeout time.Duration, args ...string) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		cmd := truthstorecmder.NewTruthstoreCmd()
		cmd.SetOut(GinkgoWriter)
		cmd.SetErr(GinkgoWriter)
		cmd.SetArgs(append([]string{
			"serve",
			"--config-dir", configDir,
			"--listen", "127.0.0.1:0",
		}, args...))
		return cmd.ExecuteContext(ctx)
	}

	BeforeEach(func() {
		configDir = GinkgoT().TempDir()
		schemaDir = GinkgoT().TempDir()
	})

	It("runs until the context ends", func() {
		Expect(execute(300*time.Millisecond, "--storage-driver", "memory")).To(Succeed())
	})

	It("writes JSON logs to the log file", func() {
		Expect(execute(300*time.Millisecond, "--storage-driver", "memory", "--log-file", "server.log")).To(Succeed())

		data, err := os.ReadFile(filepath.Join(configDir, "server.log"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`"msg":"using in-memory storage"`))
	})

	It("stores SQLite data under the config dir", func() {
		Expect(execute(300*time.Millisecond, "--storage-driver", "sqlite", "--sqlite", "data.db")).To(Succeed())
		Expect(filepath.Join(configDir, "data.db")).To(BeAnExistingFile())
	})

	It("rejects unknown storage drivers", func() {
		err := execute(time.Second, "--storage-driver", "cassandra")
		Expect(err).To(MatchError(ContainSubstring(`unknown storage driver "cassandra"`)))
	})

	It("requires a DSN for postgres", func() {
		err := execute(time.Second, "--storage-driver", "postgres")
		Expect(err).To(MatchError(ContainSubstring("postgres_dsn is required")))
	})

	It("rejects unknown event stream providers", func() {
		err := execute(time.Second, "--storage-driver", "memory", "--eventstream-provider", "pigeon")
		Expect(err).To(MatchError(ContainSubstring(`unknown eventstream provider "pigeon"`)))
	})

	It("applies the schema dir at startup", func() {
		Expect(os.WriteFile(filepath.Join(schemaDir, "company.yaml"), []byte(companyYAML), 0o644)).To(Succeed())
		Expect(execute(300*time.Millisecond, "--storage-driver", "memory", "--schema-dir", schemaDir)).To(Succeed())
	})

	It("fails on an invalid schema file", func() {
		Expect(os.WriteFile(filepath.Join(schemaDir, "broken.yaml"), []byte("type: [unclosed"), 0o644)).To(Succeed())
		err := execute(time.Second, "--storage-driver", "memory", "--schema-dir", schemaDir)
		Expect(err).To(MatchError(ContainSubstring("applying schema dir")))
	})
})
