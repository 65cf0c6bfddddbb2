// Package transfer uploads staged exchange files to the NDBC ingest server.
//
// An Upload opens one session, sends every file in order and verifies each
// acknowledgment. Authentication failures and lost connections abort the
// session; any other per-file rejection is recorded in the report and the
// session moves on to the next file. Local files are never modified.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/couchcryptid/ndbc-transfer/internal/config"
	"github.com/couchcryptid/ndbc-transfer/internal/domain"
)

// Uploader sends a batch of local files to the destination.
type Uploader interface {
	Upload(ctx context.Context, files []string) (domain.TransferReport, error)
}

// New returns the uploader for creds.Protocol.
func New(creds config.Credentials, timeout time.Duration, logger *slog.Logger) (Uploader, error) {
	switch creds.Protocol {
	case config.ProtocolFTP, "":
		return NewFTP(creds, timeout, logger), nil
	case config.ProtocolSFTP:
		return NewSFTP(creds, timeout, logger), nil
	default:
		return nil, fmt.Errorf("unsupported transfer protocol %q", creds.Protocol)
	}
}

// deadlineConn pushes the deadline forward before every read and write, so
// each network operation is bounded by timeout rather than the whole session.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.timeout > 0 {
		_ = c.SetReadDeadline(time.Now().Add(c.timeout))
	}
	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if c.timeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	return c.Conn.Write(p)
}

// isNetworkFailure reports whether err means the control connection is gone.
func isNetworkFailure(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func canceled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConnectionLost, err)
	}
	return nil
}
