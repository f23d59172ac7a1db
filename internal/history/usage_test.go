package history

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("UsageTracker", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "lyra-usage-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("starts empty with no history file", func() {
		t := NewUsageTracker(dir, nil)
		Expect(t.Count("Firefox")).To(Equal(0))
		Expect(t.Weight("Firefox")).To(Equal(1.0))
	})

	It("counts increments", func() {
		t := NewUsageTracker(dir, nil)
		t.Increment("Firefox")
		t.Increment("Firefox")
		t.Increment("Files")
		Expect(t.Count("Firefox")).To(Equal(2))
		Expect(t.Count("Files")).To(Equal(1))
	})

	Describe("Weight", func() {
		It("stays within [1.0, 1.1]", func() {
			t := NewUsageTracker(dir, nil)
			for i := 0; i < 20; i++ {
				t.Increment("Firefox")
			}
			t.Increment("Files")

			Expect(t.Weight("Firefox")).To(BeNumerically("<=", 1.1))
			Expect(t.Weight("Firefox")).To(BeNumerically(">=", 1.0))
			Expect(t.Weight("Files")).To(BeNumerically("<", t.Weight("Firefox")))
			Expect(t.Weight("unknown")).To(Equal(1.0))
		})
	})

	Describe("persistence", func() {
		It("round-trips counts through disk", func() {
			t := NewUsageTracker(dir, nil)
			t.Increment("Firefox")
			t.Increment("Firefox")
			t.Flush()

			reloaded := NewUsageTracker(dir, nil)
			Expect(reloaded.Count("Firefox")).To(Equal(2))
		})

		It("degrades a corrupted file to an empty table without deleting it", func() {
			path := filepath.Join(dir, usageFile)
			Expect(os.WriteFile(path, []byte("{not json"), 0o600)).To(Succeed())

			t := NewUsageTracker(dir, nil)
			Expect(t.Count("Firefox")).To(Equal(0))
			Expect(path).To(BeAnExistingFile())
		})

		It("rebuilds counts from the journal when the table is corrupted", func() {
			journal, err := OpenJournal(dir)
			Expect(err).NotTo(HaveOccurred())
			defer journal.Close()
			Expect(journal.Record("Firefox")).To(Succeed())
			Expect(journal.Record("Firefox")).To(Succeed())

			Expect(os.WriteFile(filepath.Join(dir, usageFile), []byte("{not json"), 0o600)).To(Succeed())

			t := NewUsageTracker(dir, journal)
			Expect(t.Count("Firefox")).To(Equal(2))
		})
	})

	It("clears everything on Reset", func() {
		t := NewUsageTracker(dir, nil)
		t.Increment("Firefox")
		t.Reset()
		Expect(t.Count("Firefox")).To(Equal(0))
	})
})
