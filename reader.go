package tftpboot

import (
	"bytes"
	"errors"
	"io"
	"os"
)

// ErrReaderClosed is returned by Read once a Reader has been closed.
var ErrReaderClosed = errors.New("reader is closed")

// Reader is what the TFTP engine streams back to a client.
// Close must be called on every exit path once the transfer is over.
type Reader interface {
	io.Reader
	io.Closer
}

// Sizer is implemented by Readers that know their total length up front.
type Sizer interface {
	Size() int64
}

// BytesReader serves a fixed, in-memory byte slice.
type BytesReader struct {
	r      *bytes.Reader
	closed bool
}

// NewBytesReader returns a Reader over b. b must not be modified afterwards.
func NewBytesReader(b []byte) *BytesReader {
	return &BytesReader{r: bytes.NewReader(b)}
}

func (b *BytesReader) Read(p []byte) (int, error) {
	if b.closed {
		return 0, ErrReaderClosed
	}
	return b.r.Read(p)
}

// Size is the total length of the underlying bytes.
func (b *BytesReader) Size() int64 {
	return b.r.Size()
}

func (b *BytesReader) Close() error {
	b.closed = true
	return nil
}

// FileReader serves a file from disk with a known size.
type FileReader struct {
	f      *os.File
	size   int64
	closed bool
}

// NewFileReader takes ownership of f. Directories are rejected with ErrNotFound.
func NewFileReader(f *os.File) (*FileReader, error) {
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.IsDir() {
		f.Close()
		return nil, &NotFoundError{Path: f.Name()}
	}
	return &FileReader{f: f, size: fi.Size()}, nil
}

func (f *FileReader) Read(p []byte) (int, error) {
	if f.closed {
		return 0, ErrReaderClosed
	}
	return f.f.Read(p)
}

// Size is the file size at open time.
func (f *FileReader) Size() int64 {
	return f.size
}

func (f *FileReader) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return f.f.Close()
}
