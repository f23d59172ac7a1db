package appindex

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lyra-sh/lyrad/internal/config"
)

// newTestConfig builds a Config whose app dirs and data dir live under
// tmpDir. Priority order is dirs as given, highest first.
func newTestConfig(tmpDir string, appDirs ...string) *config.Config {
	os.Setenv("LYRA_DATA_DIR", filepath.Join(tmpDir, "data"))
	os.Setenv("LYRA_CONFIG", filepath.Join(tmpDir, "no-such-config.toml"))
	os.Setenv("LYRA_APP_DIRS", joinPaths(appDirs))
	cfg, err := config.Load()
	Expect(err).NotTo(HaveOccurred())
	return cfg
}

func joinPaths(paths []string) string {
	out := ""
	for i, p := range paths {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

var _ = Describe("Index", func() {
	var (
		tmpDir  string
		userDir string
		sysDir  string
		cfg     *config.Config
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "lyra-appindex-test-*")
		Expect(err).NotTo(HaveOccurred())

		userDir = filepath.Join(tmpDir, "user")
		sysDir = filepath.Join(tmpDir, "system")
		Expect(os.MkdirAll(userDir, 0o755)).To(Succeed())
		Expect(os.MkdirAll(sysDir, 0o755)).To(Succeed())

		writeDesktopFile(sysDir, "firefox.desktop", "[Desktop Entry]\nName=Firefox\nExec=firefox %u\n")
		writeDesktopFile(sysDir, "files.desktop", "[Desktop Entry]\nName=Files\nExec=nautilus\n")
		writeDesktopFile(sysDir, "hidden.desktop", "[Desktop Entry]\nName=Secret\nExec=secret\nNoDisplay=true\n")

		cfg = newTestConfig(tmpDir, userDir, sysDir)
	})

	AfterEach(func() {
		os.Unsetenv("LYRA_DATA_DIR")
		os.Unsetenv("LYRA_CONFIG")
		os.Unsetenv("LYRA_APP_DIRS")
		os.RemoveAll(tmpDir)
	})

	Describe("Snapshot", func() {
		It("loads synchronously on first call", func() {
			idx := New(cfg)
			apps := idx.Snapshot()
			Expect(names(apps)).To(Equal([]string{"Files", "Firefox"}))
			Expect(idx.Generation()).To(Equal(uint64(1)))
		})

		It("filters NoDisplay entries", func() {
			idx := New(cfg)
			Expect(names(idx.Snapshot())).NotTo(ContainElement("Secret"))
		})

		It("sorts by lower-cased name", func() {
			writeDesktopFile(sysDir, "amix.desktop", "[Desktop Entry]\nName=aMixer\nExec=amixer\n")
			idx := New(cfg)
			Expect(names(idx.Snapshot())).To(Equal([]string{"aMixer", "Files", "Firefox"}))
		})

		It("scans once under concurrent first calls", func() {
			idx := New(cfg)

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					Expect(names(idx.Snapshot())).To(Equal([]string{"Files", "Firefox"}))
				}()
			}
			wg.Wait()

			Expect(idx.Generation()).To(Equal(uint64(1)))
		})

		It("keeps the first occurrence when names collide across directories", func() {
			writeDesktopFile(userDir, "firefox.desktop", "[Desktop Entry]\nName=Firefox\nExec=firefox-nightly\n")
			idx := New(cfg)

			apps := idx.Snapshot()
			for _, rec := range apps {
				if rec.Name == "Firefox" {
					Expect(rec.Exec).To(Equal("firefox-nightly"))
				}
			}
		})
	})

	Describe("RefreshAsync", func() {
		It("swaps the snapshot and bumps the generation", func() {
			idx := New(cfg)
			before := idx.Snapshot()
			Expect(before).To(HaveLen(2))
			gen := idx.Generation()

			writeDesktopFile(sysDir, "fish.desktop", "[Desktop Entry]\nName=Fish Shell\nExec=fish\n")

			done := make(chan []AppRecord, 1)
			idx.RefreshAsync(func(apps []AppRecord) { done <- apps })

			var apps []AppRecord
			Eventually(done, time.Second).Should(Receive(&apps))
			Expect(names(apps)).To(ContainElement("Fish Shell"))
			Expect(idx.Generation()).To(Equal(gen + 1))
			Expect(names(idx.Snapshot())).To(ContainElement("Fish Shell"))

			// The old snapshot is untouched.
			Expect(before).To(HaveLen(2))
		})
	})

	Describe("disk cache", func() {
		It("writes the cache after a scan", func() {
			idx := New(cfg)
			idx.Snapshot()
			Expect(filepath.Join(cfg.DataDir(), cacheFile)).To(BeAnExistingFile())
		})

		It("serves a fresh cache instead of scanning, then catches up", func() {
			cachePath := filepath.Join(cfg.DataDir(), cacheFile)
			cached := diskCache{
				Timestamp: time.Now(),
				Apps:      []AppRecord{{Name: "Cached App", Exec: "cached"}},
			}
			data, err := json.Marshal(cached)
			Expect(err).NotTo(HaveOccurred())
			Expect(os.WriteFile(cachePath, data, 0o600)).To(Succeed())

			idx := New(cfg)
			Expect(names(idx.Snapshot())).To(Equal([]string{"Cached App"}))

			// The background refresh then replaces the cached snapshot.
			Eventually(func() []string {
				return names(idx.Snapshot())
			}, time.Second).Should(Equal([]string{"Files", "Firefox"}))
		})

		It("rescans when the cache is stale", func() {
			cachePath := filepath.Join(cfg.DataDir(), cacheFile)
			cached := diskCache{
				Timestamp: time.Now().Add(-24 * time.Hour),
				Apps:      []AppRecord{{Name: "Stale App", Exec: "stale"}},
			}
			data, err := json.Marshal(cached)
			Expect(err).NotTo(HaveOccurred())
			Expect(os.WriteFile(cachePath, data, 0o600)).To(Succeed())

			idx := New(cfg)
			Expect(names(idx.Snapshot())).To(Equal([]string{"Files", "Firefox"}))
		})

		It("ignores a corrupted cache without deleting it", func() {
			cachePath := filepath.Join(cfg.DataDir(), cacheFile)
			Expect(os.WriteFile(cachePath, []byte("{broken"), 0o600)).To(Succeed())

			idx := New(cfg)
			Expect(names(idx.Snapshot())).To(Equal([]string{"Files", "Firefox"}))
		})
	})
})

func names(apps []AppRecord) []string {
	out := make([]string, len(apps))
	for i, rec := range apps {
		out[i] = rec.Name
	}
	return out
}
