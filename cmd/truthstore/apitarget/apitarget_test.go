package apitarget_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/truthstore/cmd/truthstore/apitarget"
	"github.com/papercomputeco/truthstore/pkg/config"
)

var _ = Describe("Target", func() {
	var (
		configDir string
		target    *apitarget.Target
		cmd       *cobra.Command
	)

	BeforeEach(func() {
		configDir = GinkgoT().TempDir()
		GinkgoT().Setenv(apitarget.OwnerEnv, "")

		target = &apitarget.Target{}
		cmd = &cobra.Command{Use: "probe"}
		cmd.Flags().String("config-dir", "", "")
		target.AddFlags(cmd)
	})

	parse := func(args ...string) {
		Expect(cmd.ParseFlags(append(args, "--config-dir", configDir))).To(Succeed())
	}

	It("reads the API target from config.toml", func() {
		cfger, err := config.NewConfiger(configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfger.SetConfigValue("client.api_target", "http://truth.internal:9000")).To(Succeed())

		parse("--owner", "owner-1")
		Expect(target.Resolve(cmd)).To(Succeed())
		Expect(target.APITarget).To(Equal("http://truth.internal:9000"))
	})

	It("falls back to the default API target", func() {
		parse("--owner", "owner-1")
		Expect(target.Resolve(cmd)).To(Succeed())
		Expect(target.APITarget).To(Equal("http://localhost:8090"))
	})

	It("prefers the flag over config.toml", func() {
		parse("--owner", "owner-1", "--api-target", "http://127.0.0.1:1234")
		Expect(target.Resolve(cmd)).To(Succeed())
		Expect(target.APITarget).To(Equal("http://127.0.0.1:1234"))
	})

	It("reads the owner from the environment", func() {
		GinkgoT().Setenv(apitarget.OwnerEnv, " owner-env ")
		parse()
		Expect(target.Resolve(cmd)).To(Succeed())
		Expect(target.Owner).To(Equal("owner-env"))
	})

	It("requires an owner unless it is optional", func() {
		parse()
		Expect(target.Resolve(cmd)).To(MatchError(ContainSubstring("owner scope is required")))

		target.OwnerOptional = true
		Expect(target.Resolve(cmd)).To(Succeed())
		Expect(target.Owner).To(BeEmpty())
	})

	It("builds a client for the resolved target", func() {
		parse("--owner", "owner-1", "--api-target", "localhost")
		Expect(target.Resolve(cmd)).To(Succeed())
		_, err := target.Client()
		Expect(err).To(MatchError(ContainSubstring("scheme and host are required")))
	})
})
