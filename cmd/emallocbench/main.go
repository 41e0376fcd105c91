// Command emallocbench drives the emalloc allocator under a synthetic
// mixed-size workload and reports arena stats at the end. It exists purely
// to exercise the allocator outside of the test suite; it holds no
// persistent state of its own.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"
	"unsafe"

	"github.com/emalloc-go/emalloc"
	"github.com/emalloc-go/emalloc/internal/logx"
)

func main() {
	workers := flag.Int("workers", 4, "number of concurrent goroutines driving the allocator")
	iterations := flag.Int("iterations", 50000, "allocate/release pairs per worker")
	seed := flag.Int64("seed", time.Now().UnixNano(), "PRNG seed for the size mix")
	flag.Parse()

	fmt.Println("emallocbench starting...")
	fmt.Printf("workers=%d iterations=%d seed=%d\n", *workers, *iterations, *seed)

	start := time.Now()
	runWorkload(*workers, *iterations, *seed)
	elapsed := time.Since(start)

	stats := emalloc.Snapshot()
	fmt.Printf("done in %s\n", elapsed)
	fmt.Printf("small_exp=%d medium_exp=%d populated_buddy_lists=%d\n",
		stats.SmallExp, stats.MediumExp, stats.PopulatedBuddyLists)

	os.Exit(0)
}

// sizeMix spreads requests across all three size classes, small through
// direct-mapped large.
var sizeMix = []uintptr{8, 64, 128, 4096, 65536, 1 << 17, 1 << 20}

func runWorkload(workers, iterations int, seed int64) {
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int, rng *rand.Rand) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				size := sizeMix[rng.Intn(len(sizeMix))]

				p := emalloc.Allocate(size)
				if p == nil {
					logx.Fatal("emallocbench", logx.Int("worker", id), logx.Int("iteration", i))
				}

				touch(p, size)
				emalloc.Release(p)
			}
		}(w, rand.New(rand.NewSource(seed+int64(w))))
	}

	wg.Wait()
}

func touch(p unsafe.Pointer, size uintptr) {
	buf := unsafe.Slice((*byte)(p), int(size))
	buf[0] = 0xA5
	buf[len(buf)-1] = 0x5A
}
