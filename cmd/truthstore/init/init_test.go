package initcmder_test

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/papercomputeco/truthstore/cmd/truthstore/init"
	"github.com/papercomputeco/truthstore/pkg/config"
)

var _ = Describe("NewInitCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Use).To(Equal("init"))
	})

	It("accepts zero arguments", func() {
		cmd := initcmder.NewInitCmd()
		err := cmd.Args(cmd, []string{})
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects any arguments", func() {
		cmd := initcmder.NewInitCmd()
		err := cmd.Args(cmd, []string{"extra"})
		Expect(err).To(HaveOccurred())
	})

	It("has a --preset flag", func() {
		cmd := initcmder.NewInitCmd()
		f := cmd.Flags().Lookup("preset")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal(""))
	})
})

var _ = Describe("Init command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	execute := func(args ...string) error {
		cmd := initcmder.NewInitCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "truthstore-init-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		err := os.Chdir(origDir)
		Expect(err).NotTo(HaveOccurred())
		os.RemoveAll(tmpDir)
	})

	It("creates a .truthstore directory in the current directory", func() {
		Expect(execute()).To(Succeed())

		info, err := os.Stat(filepath.Join(tmpDir, ".truthstore"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})

	It("creates a config.toml with default values", func() {
		Expect(execute()).To(Succeed())

		cfg := loadConfig(tmpDir)
		Expect(cfg.Version).To(Equal(config.CurrentV))
		Expect(cfg.Storage.Driver).To(Equal(config.DriverSQLite))
		Expect(cfg.Storage.SQLitePath).To(Equal("truthstore.db"))
		Expect(cfg.API.Listen).To(Equal(":8090"))
		Expect(cfg.Client.APITarget).To(Equal("http://localhost:8090"))
	})

	It("does not overwrite an existing config.toml", func() {
		dir := filepath.Join(tmpDir, ".truthstore")
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())

		existing := "version = 0\n\n[api]\nlisten = \":9999\"\n"
		Expect(os.WriteFile(filepath.Join(dir, "config.toml"), []byte(existing), 0o600)).To(Succeed())

		Expect(execute()).To(Succeed())

		data, err := os.ReadFile(filepath.Join(dir, "config.toml"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal(existing))
	})

	It("keeps other files in an existing .truthstore directory", func() {
		dir := filepath.Join(tmpDir, ".truthstore")
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())

		dbFile := filepath.Join(dir, "truthstore.db")
		Expect(os.WriteFile(dbFile, []byte("data"), 0o644)).To(Succeed())

		Expect(execute()).To(Succeed())

		data, err := os.ReadFile(dbFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("data"))
	})

	Describe("--preset with named presets", func() {
		It("creates config.toml with the memory preset", func() {
			Expect(execute("--preset", "memory")).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Storage.Driver).To(Equal(config.DriverMemory))
			Expect(cfg.Storage.SQLitePath).To(BeEmpty())
		})

		It("creates config.toml with the postgres preset", func() {
			Expect(execute("--preset", "postgres")).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Storage.Driver).To(Equal(config.DriverPostgres))
			Expect(cfg.Storage.PostgresDSN).To(HavePrefix("postgres://"))
			Expect(cfg.Recompute.Async).To(BeTrue())
		})

		It("rejects unknown preset names", func() {
			err := execute("--preset", "oracle")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unknown preset"))
		})

		It("overwrites config.toml when re-run with a different preset", func() {
			Expect(execute("--preset", "postgres")).To(Succeed())
			Expect(loadConfig(tmpDir).Storage.Driver).To(Equal(config.DriverPostgres))

			Expect(execute("--preset", "memory")).To(Succeed())
			Expect(loadConfig(tmpDir).Storage.Driver).To(Equal(config.DriverMemory))
		})
	})

	Describe("--preset with remote URL", func() {
		It("fetches and writes remote config.toml", func() {
			remoteCfg := `version = 0

[storage]
driver = "memory"

[api]
listen = ":9090"

[eventstream]
provider = "kafka"
brokers = ["kafka-1:9092"]
topic = "truth"
`
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				fmt.Fprint(w, remoteCfg)
			}))
			defer server.Close()

			Expect(execute("--preset", server.URL)).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Storage.Driver).To(Equal(config.DriverMemory))
			Expect(cfg.API.Listen).To(Equal(":9090"))
			Expect(cfg.EventStream.Provider).To(Equal(config.ProviderKafka))
			Expect(cfg.EventStream.Brokers).To(Equal([]string{"kafka-1:9092"}))
			Expect(cfg.EventStream.Topic).To(Equal("truth"))
		})

		It("returns error for non-200 HTTP response", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}))
			defer server.Close()

			err := execute("--preset", server.URL)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("HTTP 404"))
		})

		It("returns error for invalid TOML from URL", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, "this is not valid toml [[[")
			}))
			defer server.Close()

			err := execute("--preset", server.URL)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("parsing"))
		})

		It("returns error for unreachable URL", func() {
			err := execute("--preset", "http://127.0.0.1:1")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("fetching remote config"))
		})
	})
})

// loadConfig is a test helper that reads and parses the config.toml from the
// .truthstore directory within the given base directory.
func loadConfig(baseDir string) *config.Config {
	configPath := filepath.Join(baseDir, ".truthstore", "config.toml")
	data, err := os.ReadFile(configPath)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())

	cfg := &config.Config{}
	err = toml.Unmarshal(data, cfg)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	return cfg
}
