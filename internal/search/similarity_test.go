package search

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Normalize", func() {
	It("lower-cases and trims", func() {
		Expect(Normalize("  Firefox  ")).To(Equal("firefox"))
	})

	It("strips diacritics", func() {
		Expect(Normalize("Éclair")).To(Equal("eclair"))
		Expect(Normalize("Müller")).To(Equal("muller"))
	})

	It("leaves plain ascii untouched", func() {
		Expect(Normalize("vim")).To(Equal("vim"))
	})
})

var _ = Describe("scorer", func() {
	It("rates an exact match 1.0", func() {
		sc := newScorer("firefox")
		Expect(sc.score("firefox")).To(Equal(1.0))
	})

	It("rates a non-subsequence 0", func() {
		sc := newScorer("zzz")
		Expect(sc.score("firefox")).To(BeZero())
	})

	It("rates empty inputs 0", func() {
		sc := newScorer("")
		Expect(sc.score("firefox")).To(BeZero())
		Expect(newScorer("fi").score("")).To(BeZero())
	})

	It("keeps scores within [0, 1]", func() {
		sc := newScorer("fi")
		for _, name := range []string{"fi", "firefox", "files", "fish shell", "office suite"} {
			s := sc.score(name)
			Expect(s).To(BeNumerically(">=", 0))
			Expect(s).To(BeNumerically("<=", 1))
		}
	})

	It("prefers shorter names for the same subsequence", func() {
		sc := newScorer("fi")
		Expect(sc.score("files")).To(BeNumerically(">", sc.score("fish shell")))
	})

	It("rates a match higher than a near-miss", func() {
		sc := newScorer("firefox")
		Expect(sc.score("firefox developer edition")).To(BeNumerically(">", 0))
	})
})
