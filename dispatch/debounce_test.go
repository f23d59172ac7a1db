package dispatch

import (
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Debouncer", func() {
	It("fires only the last call of a burst", func() {
		d := NewDebouncer(10*time.Millisecond, 30*time.Millisecond)
		defer d.Stop()

		var fired atomic.Int32
		var last atomic.Value
		for _, q := range []string{"f", "fi", "fir"} {
			query := q
			d.Trigger(query, func() {
				fired.Add(1)
				last.Store(query)
			})
		}

		Eventually(fired.Load, time.Second).Should(Equal(int32(1)))
		Consistently(fired.Load, 100*time.Millisecond).Should(Equal(int32(1)))
		Expect(last.Load()).To(Equal("fir"))
	})

	It("uses the longer delay for longer queries", func() {
		d := NewDebouncer(time.Millisecond, time.Hour)
		defer d.Stop()

		var fired atomic.Int32
		d.Trigger("firefox", func() { fired.Add(1) })

		Consistently(fired.Load, 50*time.Millisecond).Should(BeZero())
	})

	It("uses the short delay at the rune threshold", func() {
		d := NewDebouncer(time.Millisecond, time.Hour)
		defer d.Stop()

		var fired atomic.Int32
		d.Trigger("fir", func() { fired.Add(1) })

		Eventually(fired.Load, time.Second).Should(Equal(int32(1)))
	})

	It("cancels pending calls on Stop", func() {
		d := NewDebouncer(20*time.Millisecond, 20*time.Millisecond)

		var fired atomic.Int32
		d.Trigger("fi", func() { fired.Add(1) })
		d.Stop()

		Consistently(fired.Load, 100*time.Millisecond).Should(BeZero())
	})
})
