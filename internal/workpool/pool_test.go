package workpool_test

import (
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/particlesim/internal/workpool"
)

var _ = Describe("Pool", func() {
	var pool *workpool.Pool

	AfterEach(func() {
		if pool != nil {
			pool.Close()
		}
	})

	It("defaults to one worker per CPU", func() {
		pool = workpool.New(0)
		Expect(pool.Workers()).To(BeNumerically(">=", 1))
	})

	Describe("Enqueue", func() {
		It("runs the task and completes the handle", func() {
			pool = workpool.New(2)
			var ran atomic.Bool

			h, err := pool.Enqueue(func() { ran.Store(true) })
			Expect(err).NotTo(HaveOccurred())

			Eventually(h.Done()).Should(BeClosed())
			Expect(ran.Load()).To(BeTrue())
		})

		It("returns typed results through Submit", func() {
			pool = workpool.New(2)

			f, err := workpool.Submit(pool, func() int { return 6 * 7 })
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Get()).To(Equal(42))
		})

		It("fails with ErrPoolClosed after Close", func() {
			pool = workpool.New(1)
			pool.Close()

			_, err := pool.Enqueue(func() {})
			Expect(err).To(MatchError(workpool.ErrPoolClosed))

			_, err = workpool.Submit(pool, func() int { return 1 })
			Expect(err).To(MatchError(workpool.ErrPoolClosed))
		})
	})

	Describe("Dispatch", func() {
		DescribeTable("covers every index exactly once",
			func(workers, count int) {
				pool = workpool.New(workers)
				hits := make([]int32, count)

				err := pool.Dispatch(count, func(start, end int) {
					for i := start; i < end; i++ {
						atomic.AddInt32(&hits[i], 1)
					}
				})
				Expect(err).NotTo(HaveOccurred())

				for i := range hits {
					Expect(hits[i]).To(Equal(int32(1)), "index %d", i)
				}
			},
			Entry("even split", 4, 100),
			Entry("with remainder", 4, 103),
			Entry("fewer elements than workers", 8, 5),
			Entry("single worker", 1, 17),
			Entry("empty range", 3, 0),
		)

		It("hands out contiguous slices of count/N and a caller-side tail", func() {
			pool = workpool.New(3)
			var mu sync.Mutex
			var ranges [][2]int

			Expect(pool.Dispatch(11, func(start, end int) {
				mu.Lock()
				ranges = append(ranges, [2]int{start, end})
				mu.Unlock()
			})).To(Succeed())

			Expect(ranges).To(ConsistOf(
				[2]int{0, 3}, [2]int{3, 6}, [2]int{6, 9}, [2]int{9, 11},
			))
		})

		It("blocks until all slices have finished", func() {
			pool = workpool.New(4)
			var finished atomic.Int32

			Expect(pool.Dispatch(8, func(start, end int) {
				for i := start; i < end; i++ {
					finished.Add(1)
				}
			})).To(Succeed())

			Expect(finished.Load()).To(Equal(int32(8)))
		})

		It("fails with ErrPoolClosed after Close and runs nothing", func() {
			pool = workpool.New(2)
			pool.Close()
			called := false

			err := pool.Dispatch(10, func(start, end int) { called = true })
			Expect(err).To(MatchError(workpool.ErrPoolClosed))
			Expect(called).To(BeFalse())
		})
	})

	Describe("Close", func() {
		It("drains queued tasks exactly once before returning", func() {
			pool = workpool.New(1)
			const n = 16
			release := make(chan struct{})
			counts := make([]int32, n)

			_, err := pool.Enqueue(func() { <-release })
			Expect(err).NotTo(HaveOccurred())
			for i := 0; i < n; i++ {
				i := i
				_, err := pool.Enqueue(func() { atomic.AddInt32(&counts[i], 1) })
				Expect(err).NotTo(HaveOccurred())
			}
			Eventually(pool.Pending).Should(Equal(n))

			closed := make(chan struct{})
			go func() {
				defer close(closed)
				pool.Close()
			}()
			Eventually(pool.Closed).Should(BeTrue())
			Consistently(closed).ShouldNot(BeClosed())

			close(release)
			Eventually(closed).Should(BeClosed())

			for i := range counts {
				Expect(atomic.LoadInt32(&counts[i])).To(Equal(int32(1)), "task %d", i)
			}
			Expect(pool.Pending()).To(BeZero())
		})

		It("is idempotent", func() {
			pool = workpool.New(2)
			pool.Close()
			Expect(pool.Close).NotTo(Panic())
		})
	})
})
