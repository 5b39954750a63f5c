package tftpboot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// transfer is a fake outgoing TFTP transfer.
type transfer struct {
	buf     bytes.Buffer
	size    int64
	sizeSet bool
	err     error
}

func (t *transfer) ReadFrom(r io.Reader) (int64, error) {
	if t.err != nil {
		return 0, t.err
	}
	return t.buf.ReadFrom(r)
}

func (t *transfer) SetSize(n int64) {
	t.size, t.sizeSet = n, true
}

func (t *transfer) RemoteAddr() net.UDPAddr {
	return net.UDPAddr{IP: net.IPv4(192, 0, 2, 10), Port: 2000}
}

// plainTransfer has no tsize support.
type plainTransfer struct {
	bytes.Buffer
}

type trackingReader struct {
	io.Reader
	closed int
}

func (r *trackingReader) Close() error {
	r.closed++
	return nil
}

type fakeReadBackend struct {
	r    Reader
	err  error
	path string
}

func (f *fakeReadBackend) GetReader(_ context.Context, p string) (Reader, error) {
	f.path = p
	return f.r, f.err
}

func TestServeRead(t *testing.T) {
	data := randomBytes(t, 1300)
	rf := &transfer{}
	b := &fakeReadBackend{r: NewBytesReader(data)}

	require.NoError(t, serveRead(context.Background(), b, testr.New(t), "pxelinux.0", rf))
	assert.Equal(t, "pxelinux.0", b.path)
	assert.Equal(t, data, rf.buf.Bytes())
	assert.True(t, rf.sizeSet)
	assert.Equal(t, int64(len(data)), rf.size)
}

func TestServeReadUnsized(t *testing.T) {
	r := &trackingReader{Reader: bytes.NewReader([]byte("hello"))}
	rf := &transfer{}
	require.NoError(t, serveRead(context.Background(), &fakeReadBackend{r: r}, testr.New(t), "f", rf))
	assert.False(t, rf.sizeSet)
	assert.Equal(t, "hello", rf.buf.String())
	assert.Equal(t, 1, r.closed)
}

func TestServeReadPlainTransfer(t *testing.T) {
	rf := &plainTransfer{}
	require.NoError(t, serveRead(context.Background(), &fakeReadBackend{r: NewBytesReader([]byte("abc"))}, testr.New(t), "f", rf))
	assert.Equal(t, "abc", rf.String())
}

func TestServeReadClosesOnFailure(t *testing.T) {
	r := &trackingReader{Reader: bytes.NewReader([]byte("hello"))}
	rf := &transfer{err: errors.New("peer went away")}
	err := serveRead(context.Background(), &fakeReadBackend{r: r}, testr.New(t), "f", rf)
	assert.EqualError(t, err, "peer went away")
	assert.Equal(t, 1, r.closed)
}

func TestServeReadBackendErrors(t *testing.T) {
	tests := map[string]error{
		"not found": &NotFoundError{Path: "missing"},
		"other":     assert.AnError,
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			rf := &transfer{}
			err := serveRead(context.Background(), &fakeReadBackend{err: want}, testr.New(t), "missing", rf)
			assert.ErrorIs(t, err, want)
			assert.Zero(t, rf.buf.Len())
			assert.False(t, rf.sizeSet)
		})
	}
}

func TestServeReadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &trackingReader{Reader: bytes.NewReader([]byte("hello"))}
	rf := &transfer{}
	err := serveRead(ctx, &fakeReadBackend{r: r}, testr.New(t), "f", rf)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, rf.buf.Len())
	assert.Equal(t, 1, r.closed)
}
