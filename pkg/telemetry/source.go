package telemetry

import (
	"errors"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
)

// Source is a raw telemetry byte stream. Read may return 0 bytes and no error
// when a live source has nothing yet.
type Source interface {
	io.ReadCloser
}

// FileSource serves a recorded telemetry file from a read-only memory map.
type FileSource struct {
	file *os.File
	data mmap.MMap
	pos  int
}

func OpenFileSource(filename string) (*FileSource, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, &eventbuilder.ErrOpenFile{Filename: filename, Err: err}
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, &eventbuilder.ErrOpenFile{Filename: filename, Err: err}
	}

	source := &FileSource{file: file}
	// an empty file cannot be mapped
	if info.Size() > 0 {
		data, err := mmap.Map(file, mmap.RDONLY, 0)
		if err != nil {
			file.Close()
			return nil, &eventbuilder.ErrOpenFile{Filename: filename, Err: err}
		}
		source.data = data
	}
	return source, nil
}

func (s *FileSource) Read(p []byte) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += n
	return n, nil
}

func (s *FileSource) Size() int {
	return len(s.data)
}

func (s *FileSource) Close() error {
	var errs []error
	if s.data != nil {
		errs = append(errs, s.data.Unmap())
		s.data = nil
	}
	if s.file != nil {
		errs = append(errs, s.file.Close())
		s.file = nil
	}
	return errors.Join(errs...)
}
