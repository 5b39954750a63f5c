package tftpboot

import (
	"context"
	"errors"
	"io"

	"github.com/go-logr/logr"
	"github.com/pin/tftp/v3"
)

// ReadBackend is the part of a Backend a listener needs.
type ReadBackend interface {
	GetReader(ctx context.Context, path string) (Reader, error)
}

// serveRead answers one TFTP read request. The reader is closed on every path.
func serveRead(ctx context.Context, b ReadBackend, l logr.Logger, filename string, rf io.ReaderFrom) error {
	r, err := b.GetReader(ctx, filename)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			l.V(1).Info("file not found", "file", filename)
		} else {
			l.Error(err, "failed to get reader", "file", filename)
		}
		return err
	}
	defer r.Close()

	// tsize option, clients use it to size their buffers.
	if s, ok := r.(Sizer); ok {
		if ot, ok := rf.(tftp.OutgoingTransfer); ok {
			ot.SetSize(s.Size())
		}
	}
	n, err := rf.ReadFrom(ctxReader{ctx: ctx, r: r})
	if err != nil {
		l.Error(err, "transfer failed", "file", filename, "sent", n)
		return err
	}
	l.V(1).Info("transfer complete", "file", filename, "sent", n)
	return nil
}

// ctxReader stops a transfer once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
