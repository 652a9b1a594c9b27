package cliui_test

import (
	"bytes"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/truthstore/pkg/cliui"
)

var _ = Describe("cliui", func() {
	Describe("FormatDuration", func() {
		It("uses milliseconds below a second", func() {
			Expect(cliui.FormatDuration(42 * time.Millisecond)).To(Equal("42ms"))
		})

		It("uses seconds with one decimal above a second", func() {
			Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
		})
	})

	Describe("Mark", func() {
		It("picks the mark from the error", func() {
			Expect(cliui.Mark(nil)).To(Equal(cliui.SuccessMark))
			Expect(cliui.Mark(errors.New("boom"))).To(Equal(cliui.FailMark))
		})
	})

	Describe("Step", func() {
		It("returns the function error and prints the message", func() {
			var buf bytes.Buffer
			boom := errors.New("boom")

			err := cliui.Step(&buf, "applying schemas", func() error { return boom })
			Expect(err).To(MatchError(boom))
			Expect(buf.String()).To(ContainSubstring("applying schemas"))
			Expect(buf.String()).To(HaveSuffix("\n"))
			Expect(buf.String()).To(ContainSubstring(cliui.FailMark))
		})

		It("prints a single line when not writing to a terminal", func() {
			var buf bytes.Buffer

			Expect(cliui.Step(&buf, "registering company", func() error {
				time.Sleep(200 * time.Millisecond)
				return nil
			})).To(Succeed())
			Expect(strings.Count(buf.String(), "registering company")).To(Equal(1))
			Expect(buf.String()).To(ContainSubstring(cliui.SuccessMark))
		})
	})

	Describe("RenderMarkdown", func() {
		It("keeps the content text", func() {
			out, err := cliui.RenderMarkdown("# company\n\n| field | value |\n| --- | --- |\n| name | Acme |\n", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("Acme"))
		})

		It("wraps at the given width", func() {
			long := strings.Repeat("observation ", 20)
			out, err := cliui.RenderMarkdown(long, 40)
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.Count(out, "\n")).To(BeNumerically(">", 3))
		})
	})
})
