// File: readers/fileout.go
// Author: momentics <momentics@gmail.com>

package readers

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/momentics/hioload-exec/api"
)

// FileOut writes stdout to a file and keeps stderr in memory.
type FileOut struct {
	Base
	counter

	path   string
	file   *os.File
	w      *bufio.Writer
	stderr lockedBuffer
}

var _ api.ReaderPair = (*FileOut)(nil)

// NewFileOut creates or truncates path.
func NewFileOut(path string) (*FileOut, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}
	return &FileOut{path: path, file: f, w: bufio.NewWriterSize(f, 64*1024)}, nil
}

// Path is the capture file.
func (r *FileOut) Path() string { return r.path }

func (r *FileOut) Cin(fd int) (bool, error) {
	return pump(fd, &r.outN, func(p []byte) error {
		_, err := r.w.Write(p)
		return err
	})
}

func (r *FileOut) Cerr(fd int) (bool, error) { return pump(fd, &r.errN, r.stderr.Write) }

// Clear flushes buffered output to the file.
func (r *FileOut) Clear() {
	_ = r.w.Flush()
}

func (r *FileOut) ErrorString() string { return string(r.stderr.Bytes()) }

// Close flushes and closes the file.
func (r *FileOut) Close() error {
	return errors.Join(r.w.Flush(), r.file.Close())
}
