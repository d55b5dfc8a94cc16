// Package concurrency
// Author: momentics <momentics@gmail.com>
//
// Sleep schedules shared by blocking loops that poll for a state change.
package concurrency
