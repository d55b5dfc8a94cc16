// Package pool
// Author: momentics <momentics@gmail.com>
//
// Reusable fixed-size byte chunks for pipe reads and forwarding.
package pool
