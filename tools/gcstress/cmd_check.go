package main

import "fmt"
import "time"
import "math/rand"

import "github.com/spf13/cobra"
import "github.com/bnclabs/gengc"
import "github.com/bnclabs/gengc/heap"

var checkopts struct {
	repeat int
	chains int
	length int
	seed   int64
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that rooted object graphs survive collections",
	Long: `Build rooted chains of cons cells along with garbage, collect
repeatedly and validate that every rooted chain is intact, unrooted
chains are reclaimed and weak references follow their objects.

Example:
  gcstress check --repeat 100 --chains 16 --length 1000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return doCheck()
	},
}

func init() {
	f := checkCmd.Flags()
	f.IntVar(&checkopts.repeat, "repeat", 10,
		"number of times to repeat the check")
	f.IntVar(&checkopts.chains, "chains", 8, "number of chains to build")
	f.IntVar(&checkopts.length, "length", 1000, "length of each chain")
	f.Int64Var(&checkopts.seed, "seed", time.Now().UnixNano(),
		"seed for choosing rooted chains")
	heapflags(f)
	rootCmd.AddCommand(checkCmd)
}

func doCheck() error {
	rnd := rand.New(rand.NewSource(checkopts.seed))
	fmt.Printf("seed: %v\n", checkopts.seed)

	gc := gengc.New("check", heapsettings())
	defer gc.Close()
	m, err := gc.Register()
	if err != nil {
		return err
	}
	defer m.Unregister()

	for i := 0; i < checkopts.repeat; i++ {
		rooted, garbage := []heap.GcPtr{}, []heap.WeakGcPtr{}
		for j := 0; j < checkopts.chains; j++ {
			head, err := buildchain(gc, m, checkopts.length)
			if err != nil {
				return err
			}
			if rnd.Intn(2) == 0 {
				rooted = append(rooted, head)
				continue
			}
			gc.RemoveRoot(head)
			garbage = append(garbage, gc.Downgrade(head))
		}

		gc.CollectAll()
		gc.Validate()
		for _, head := range rooted {
			if n := chainlength(gc, head); n != checkopts.length {
				return fmt.Errorf("repeat %v: chain %v has %v cells, expected %v",
					i, head.ID(), n, checkopts.length)
			}
		}
		for _, weak := range garbage {
			if _, ok := gc.Get(weak.ID()); ok {
				return fmt.Errorf("repeat %v: %v not reclaimed", i, weak)
			}
		}
		if n := gc.DebugInfo().Weaks; n != 0 {
			return fmt.Errorf("repeat %v: %v weak references outlive objects", i, n)
		}
		for _, head := range rooted {
			gc.RemoveRoot(head)
		}
		// survivors beyond maxpromotions need more than one pass.
		for pass := 0; pass < 100 && gc.DebugInfo().TotalObjects > 0; pass++ {
			gc.CollectAll()
		}
		if n := gc.DebugInfo().TotalObjects; n != 0 {
			return fmt.Errorf("repeat %v: %v objects leaked", i, n)
		}
	}
	fmt.Printf("checked %v repeats of %v chains\n", checkopts.repeat, checkopts.chains)
	reportstats(gc)
	return nil
}

// build a chain of cells, the head is kept rooted while building and
// returned rooted.
func buildchain(
	gc *gengc.Coordinator, m *gengc.Mutator, length int) (heap.GcPtr, error) {

	prev := heap.NilPtr
	for i := 0; i < length; i++ {
		ptr, err := m.AllocateRoot(&cell{cdr: prev.ID()}, 32)
		if err != nil {
			return heap.NilPtr, err
		}
		if !prev.Isnil() {
			gc.RemoveRoot(prev)
		}
		prev = ptr
	}
	return prev, nil
}

func chainlength(gc *gengc.Coordinator, head heap.GcPtr) (n int) {
	for id := head.ID(); !id.Isnil(); n++ {
		ptr, ok := gc.Get(id)
		if !ok {
			return n
		}
		id = ptr.Value().(*cell).cdr
	}
	return n
}
