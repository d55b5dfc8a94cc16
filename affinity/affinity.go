//go:build linux

// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Pinning the calling goroutine's OS thread to one logical CPU.

package affinity

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/momentics/hioload-exec/api"
	"golang.org/x/sys/unix"
)

// maxCPU is the capacity of unix.CPUSet.
const maxCPU = int(unsafe.Sizeof(unix.CPUSet{}) * 8)

// Pin locks the calling goroutine to its OS thread and restricts that thread
// to cpuID. Children forked from the thread inherit the mask. The returned
// restore puts the previous mask back and unlocks the thread; it must be
// called from the same goroutine.
func Pin(cpuID int) (restore func() error, err error) {
	if cpuID < 0 || cpuID >= maxCPU {
		return nil, fmt.Errorf("affinity: cpu %d out of range [0,%d): %w", cpuID, maxCPU, api.ErrInvalidArgument)
	}
	runtime.LockOSThread()

	var prev unix.CPUSet
	if err := unix.SchedGetaffinity(0, &prev); err != nil {
		runtime.UnlockOSThread()
		return nil, api.NewSystemCallError("sched_getaffinity", err)
	}
	var set unix.CPUSet
	set.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		runtime.UnlockOSThread()
		return nil, api.NewSystemCallError("sched_setaffinity", err)
	}

	return func() error {
		defer runtime.UnlockOSThread()
		if err := unix.SchedSetaffinity(0, &prev); err != nil {
			return api.NewSystemCallError("sched_setaffinity", err)
		}
		return nil
	}, nil
}

// Current returns the CPUs the calling thread may run on.
func Current() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, api.NewSystemCallError("sched_getaffinity", err)
	}
	var cpus []int
	for i := 0; i < maxCPU && len(cpus) < set.Count(); i++ {
		if set.IsSet(i) {
			cpus = append(cpus, i)
		}
	}
	return cpus, nil
}
