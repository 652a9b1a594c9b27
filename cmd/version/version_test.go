package versioncmder_test

import (
	"bytes"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/truthstore/api/apitest"
	versioncmder "github.com/papercomputeco/truthstore/cmd/version"
	"github.com/papercomputeco/truthstore/pkg/utils"
)

var _ = Describe("version command", func() {
	var out *bytes.Buffer

	execute := func(args ...string) error {
		cmd := versioncmder.NewVersionCmd()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	BeforeEach(func() {
		out = &bytes.Buffer{}
	})

	It("prints the CLI build", func() {
		Expect(execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Version: " + utils.Version))
		Expect(out.String()).NotTo(ContainSubstring("Server"))
	})

	It("includes the server build with --server", func() {
		ts, err := apitest.NewServer()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(ts.Close)

		Expect(execute("--server", "--json", "--api-target", ts.URL)).To(Succeed())

		var versions map[string]utils.BuildInfo
		Expect(json.Unmarshal(out.Bytes(), &versions)).To(Succeed())
		Expect(versions).To(HaveKeyWithValue("cli", utils.CurrentBuild()))
		Expect(versions).To(HaveKeyWithValue("server", utils.CurrentBuild()))
	})

	It("fails when the server is unreachable", func() {
		Expect(execute("--server", "--api-target", "http://127.0.0.1:1")).To(HaveOccurred())
	})
})
