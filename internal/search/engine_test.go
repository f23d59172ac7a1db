package search

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lyra-sh/lyrad/internal/appindex"
	"github.com/lyra-sh/lyrad/internal/config"
	"github.com/lyra-sh/lyrad/internal/history"
)

func writeDesktopFile(dir, name, content string) {
	Expect(os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644)).To(Succeed())
}

var _ = Describe("Engine", func() {
	var (
		tmpDir  string
		appsDir string
		cfg     *config.Config
		index   *appindex.Index
		usage   *history.UsageTracker
		recency *history.RecencyTracker
		engine  *Engine
	)

	newEngine := func() *Engine {
		var err error
		cfg, err = config.Load()
		Expect(err).NotTo(HaveOccurred())

		index = appindex.New(cfg)
		usage = history.NewUsageTracker(cfg.DataDir(), nil)
		recency = history.NewRecencyTracker(cfg.DataDir(), nil, nil)

		e, err := New(cfg, index, usage, recency)
		Expect(err).NotTo(HaveOccurred())
		return e
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "lyra-search-test-*")
		Expect(err).NotTo(HaveOccurred())

		appsDir = filepath.Join(tmpDir, "apps")
		Expect(os.MkdirAll(appsDir, 0o755)).To(Succeed())

		writeDesktopFile(appsDir, "firefox.desktop", "[Desktop Entry]\nName=Firefox\nExec=firefox %u\n")
		writeDesktopFile(appsDir, "files.desktop", "[Desktop Entry]\nName=Files\nExec=nautilus\n")
		writeDesktopFile(appsDir, "fish.desktop", "[Desktop Entry]\nName=Fish Shell\nExec=fish\n")
		writeDesktopFile(appsDir, "gimp.desktop", "[Desktop Entry]\nName=GIMP\nExec=gimp\nKeywords=image;editor;\n")

		os.Setenv("LYRA_DATA_DIR", filepath.Join(tmpDir, "data"))
		os.Setenv("LYRA_CONFIG", filepath.Join(tmpDir, "no-such-config.toml"))
		os.Setenv("LYRA_APP_DIRS", appsDir)

		engine = newEngine()
	})

	AfterEach(func() {
		os.Unsetenv("LYRA_DATA_DIR")
		os.Unsetenv("LYRA_CONFIG")
		os.Unsetenv("LYRA_APP_DIRS")
		os.Unsetenv("LYRA_SLOW_SEARCH")
		os.RemoveAll(tmpDir)
	})

	Describe("Search", func() {
		It("ranks prefix matches by name length", func() {
			Expect(resultNames(engine.Search("fi", 10))).To(Equal([]string{"Files", "Firefox", "Fish Shell"}))
		})

		It("is case and whitespace insensitive", func() {
			Expect(resultNames(engine.Search("  FI  ", 10))).To(Equal([]string{"Files", "Firefox", "Fish Shell"}))
		})

		It("returns nothing below the similarity cutoff", func() {
			Expect(engine.Search("zzz", 10)).To(BeEmpty())
		})

		It("truncates to maxResults", func() {
			Expect(engine.Search("fi", 1)).To(HaveLen(1))
		})

		It("surfaces keyword matches", func() {
			Expect(resultNames(engine.Search("image", 10))).To(ContainElement("GIMP"))
		})

		It("breaks equal-similarity ties by index order", func() {
			writeDesktopFile(appsDir, "filer.desktop", "[Desktop Entry]\nName=Filer\nExec=filer\n")

			names := resultNames(engine.Search("fi", 10))
			Expect(names[0]).To(Equal("Filer"))
			Expect(names[1]).To(Equal("Files"))
		})

		It("boosts frequently launched items over equal-similarity ties", func() {
			// Filer and Files score identically for "fi"; the usage weight
			// band is at most 1.1x, enough to reorder ties but not to
			// overtake a stronger textual match.
			writeDesktopFile(appsDir, "filer.desktop", "[Desktop Entry]\nName=Filer\nExec=filer\n")
			for i := 0; i < 5; i++ {
				usage.Increment("Files")
			}

			names := resultNames(engine.Search("fi", 10))
			Expect(names[0]).To(Equal("Files"))
			Expect(names[1]).To(Equal("Filer"))
		})

		It("boosts recently launched items", func() {
			recency.Increment("Firefox")
			Expect(resultNames(engine.Search("fi", 10))[0]).To(Equal("Firefox"))
		})
	})

	Describe("browse mode", func() {
		It("returns everything for an empty query", func() {
			Expect(engine.Search("", 10)).To(HaveLen(4))
		})

		It("puts recently used items first", func() {
			recency.Increment("Files")
			Expect(resultNames(engine.Search("", 10))[0]).To(Equal("Files"))
		})

		It("respects maxResults", func() {
			Expect(engine.Search("", 2)).To(HaveLen(2))
		})
	})

	Describe("result cache", func() {
		It("serves repeated queries from the cache", func() {
			first := engine.Search("fi", 10)
			second := engine.Search("fi", 10)
			Expect(second).To(Equal(first))

			stats := engine.CacheStats()
			Expect(stats.Hits).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
		})

		It("serves a cached list at any truncation", func() {
			full := engine.Search("fi", 10)
			top := engine.Search("fi", 1)
			Expect(top).To(Equal(full[:1]))
			Expect(engine.CacheStats().Hits).To(Equal(uint64(1)))
		})

		It("treats differently cased queries as one entry", func() {
			engine.Search("fi", 10)
			engine.Search("FI", 10)
			Expect(engine.CacheStats().Hits).To(Equal(uint64(1)))
		})

		It("misses after the index generation changes", func() {
			engine.Search("fi", 10)

			writeDesktopFile(appsDir, "firebird.desktop", "[Desktop Entry]\nName=Firebird\nExec=firebird\n")
			done := make(chan []appindex.AppRecord, 1)
			index.RefreshAsync(func(apps []appindex.AppRecord) { done <- apps })
			Eventually(done, time.Second).Should(Receive())

			results := engine.Search("fi", 10)
			Expect(resultNames(results)).To(ContainElement("Firebird"))
			Expect(engine.CacheStats().Misses).To(Equal(uint64(2)))
		})

		It("skips caching when the computation blows the slow budget", func() {
			os.Setenv("LYRA_SLOW_SEARCH", "1ns")
			slow := newEngine()

			slow.Search("fi", 10)
			slow.Search("fi", 10)

			stats := slow.CacheStats()
			Expect(stats.Hits).To(BeZero())
			Expect(stats.Misses).To(Equal(uint64(2)))
			Expect(stats.Len).To(BeZero())
		})

		It("purges on demand", func() {
			engine.Search("fi", 10)
			Expect(engine.CacheStats().Len).To(Equal(1))
			engine.PurgeCache()
			Expect(engine.CacheStats().Len).To(BeZero())
		})
	})
})

func resultNames(apps []appindex.AppRecord) []string {
	out := make([]string, len(apps))
	for i, rec := range apps {
		out[i] = rec.Name
	}
	return out
}
