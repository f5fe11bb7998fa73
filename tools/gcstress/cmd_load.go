package main

import "os"
import "fmt"
import "sync"
import "time"
import "runtime"
import "math/rand"
import "runtime/pprof"

import humanize "github.com/dustin/go-humanize"
import "github.com/spf13/cobra"
import "github.com/bnclabs/gengc"
import "github.com/bnclabs/gengc/api"

var loadopts struct {
	n        int
	mutators int
	ncpu     int
	size     string
	rootpct  int
	memtick  int64
	mprof    string
	pprof    string
	seed     int64
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Allocate objects from concurrent mutators",
	Long: `Allocate objects from concurrent mutators, rooting a fraction of
them and linking every allocation to the previous one, then report
allocation throughput and collection statistics.

Example:
  gcstress load -n 1000000 --mutators 8 --size 16,256 --rootpct 1`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return doLoad()
	},
}

func init() {
	f := loadCmd.Flags()
	f.IntVarP(&loadopts.n, "n", "n", 100000,
		"number of allocations per mutator")
	f.IntVar(&loadopts.mutators, "mutators", 4,
		"number of concurrent mutators")
	f.IntVar(&loadopts.ncpu, "ncpu", runtime.NumCPU(),
		"set number cores to use")
	f.StringVar(&loadopts.size, "size", "16,256",
		"min,max - object sizes between [min,max)")
	f.IntVar(&loadopts.rootpct, "rootpct", 1,
		"percentage of allocations to root")
	f.Int64Var(&loadopts.memtick, "memtick", 0,
		"log go memory stats for every tick, in ms")
	f.StringVar(&loadopts.mprof, "mprof", "", "dump mem-profile to file")
	f.StringVar(&loadopts.pprof, "pprof", "", "dump cpu-profile to file")
	f.Int64Var(&loadopts.seed, "seed", time.Now().UnixNano(),
		"seed for generating sizes")
	heapflags(f)
	rootCmd.AddCommand(loadCmd)
}

func doLoad() error {
	fmt.Printf("Setting number of cpus to %v\n", loadopts.ncpu)
	runtime.GOMAXPROCS(loadopts.ncpu)

	finch := make(chan struct{})
	defer close(finch)
	go memstatLogger(loadopts.memtick, finch)

	if loadopts.pprof != "" {
		fd, err := os.Create(loadopts.pprof)
		if err != nil {
			return fmt.Errorf("unable to create %q: %w", loadopts.pprof, err)
		}
		defer fd.Close()
		pprof.StartCPUProfile(fd)
		defer pprof.StopCPUProfile()
	}

	heap := gengc.New("load", heapsettings())
	defer heap.Close()

	sizes := parserange(loadopts.size, [2]int64{16, 256})
	now := time.Now()
	count, err := runmutators(heap, sizes, loadopts.seed)
	elapsed := time.Since(now)
	if err != nil {
		return err
	}

	rate := float64(count) / elapsed.Seconds()
	fmt.Printf("Took %v to allocate %v objects, %.0f/sec\n", elapsed, count, rate)
	reportstats(heap)

	if takeMEMProfile(loadopts.mprof) {
		fmt.Printf("dumped mem-profile to %v\n", loadopts.mprof)
	}
	return nil
}

func runmutators(heap *gengc.Coordinator, sizes [2]int64, seed int64) (int64, error) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firsterr error
	var count int64

	for n := 0; n < loadopts.mutators; n++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			allocated, err := mutate(heap, sizes, seed)
			mu.Lock()
			count += allocated
			if err != nil && firsterr == nil {
				firsterr = err
			}
			mu.Unlock()
		}(seed + int64(n))
	}
	wg.Wait()
	return count, firsterr
}

func mutate(heap *gengc.Coordinator, sizes [2]int64, seed int64) (int64, error) {
	m, err := heap.Register()
	if err != nil {
		return 0, err
	}
	defer m.Unregister()

	rnd := rand.New(rand.NewSource(seed))
	prev, count := api.NilObject, int64(0)
	for i := 0; i < loadopts.n; i++ {
		size := sizes[0]
		if sizes[1] > sizes[0] {
			size += rnd.Int63n(sizes[1] - sizes[0])
		}
		value := &cell{cdr: prev}
		if rnd.Intn(100) < loadopts.rootpct {
			ptr, err := m.AllocateRoot(value, size)
			if err != nil {
				return count, err
			}
			prev = ptr.ID()
		} else {
			ptr, err := m.Allocate(value, size)
			if err != nil {
				return count, err
			}
			prev = ptr.ID()
		}
		count++
	}
	return count, nil
}

func reportstats(heap *gengc.Coordinator) {
	st := heap.Statistics()
	fmt.Printf("allocated  : %v objects, %v, avg %v\n", st.TotalAllocations,
		humanize.Bytes(uint64(st.TotalAllocatedBytes)),
		humanize.Bytes(uint64(st.AvgAllocationSize)))
	fmt.Printf("collections: %v minor (avg %v), %v major (avg %v)\n",
		st.MinorCollections, st.AvgMinorPause,
		st.MajorCollections, st.AvgMajorPause)
	fmt.Printf("tlab       : %.2f%% utilized, %.2f%% wasted\n",
		st.TLABUtilization, st.TLABWaste)
	fmt.Printf("heap       : %v\n", heap.DebugInfo())
	fmt.Printf("health     : %v, score %.2f\n", st.Healthy(), st.Score())
	if rootopts.logstats {
		heap.Log()
	}
}
