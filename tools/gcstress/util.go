package main

import "os"
import "fmt"
import "time"
import "runtime"
import "runtime/pprof"

import humanize "github.com/dustin/go-humanize"
import "github.com/bnclabs/gengc/api"

// cell is a cons cell, the payload used to build object graphs.
type cell struct {
	car, cdr api.ObjectID
}

func (c *cell) References() []api.ObjectID {
	return []api.ObjectID{c.car, c.cdr}
}

func takeMEMProfile(filename string) bool {
	if filename == "" {
		return false
	}
	fd, err := os.Create(filename)
	if err != nil {
		fmt.Println(err)
		return false
	}
	defer fd.Close()
	pprof.WriteHeapProfile(fd)
	return true
}

func memstatLogger(tick int64, finch chan struct{}) {
	if tick <= 0 {
		return
	}
	var ms runtime.MemStats
	ticker := time.NewTicker(time.Duration(tick) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-finch:
			return
		}
		runtime.ReadMemStats(&ms)
		fmsg := "go heap: %v alloc %v sys, %v gc cycles\n"
		fmt.Printf(fmsg, humanize.Bytes(ms.HeapAlloc),
			humanize.Bytes(ms.HeapSys), ms.NumGC)
	}
}
