// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package fdio provides AutoFd, a reference-counted owner of a raw OS
// descriptor with blocking and poll-bounded read/write.
//
// Copies made with Share point at the same descriptor; the descriptor is
// closed synchronously when the last owner calls Close. Handles may be shared
// between goroutines but only one owner should drive I/O at a time.
package fdio
