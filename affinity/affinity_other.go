//go:build !linux

// File: affinity/affinity_other.go
// Author: momentics <momentics@gmail.com>

package affinity

import "github.com/momentics/hioload-exec/api"

// Pin is not available on this platform.
func Pin(cpuID int) (restore func() error, err error) {
	return nil, api.ErrNotSupported
}

// Current is not available on this platform.
func Current() ([]int, error) {
	return nil, api.ErrNotSupported
}
