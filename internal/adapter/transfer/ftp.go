package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/couchcryptid/ndbc-transfer/internal/config"
	"github.com/couchcryptid/ndbc-transfer/internal/domain"
)

// ftpConn is the subset of *ftp.ServerConn used by FTPUploader.
type ftpConn interface {
	Login(user, password string) error
	Type(transferType ftp.TransferType) error
	ChangeDir(path string) error
	Stor(path string, r io.Reader) error
	Quit() error
}

type ftpDialFunc func(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error)

func dialFTP(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := ftp.Dial(addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithDialFunc(func(network, address string) (net.Conn, error) {
			c, err := dialer.DialContext(ctx, network, address)
			if err != nil {
				return nil, err
			}
			return &deadlineConn{Conn: c, timeout: timeout}, nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// FTPUploader transfers files over plain FTP in ASCII mode.
type FTPUploader struct {
	creds   config.Credentials
	timeout time.Duration
	dial    ftpDialFunc
	logger  *slog.Logger
}

// NewFTP creates an FTP uploader.
func NewFTP(creds config.Credentials, timeout time.Duration, logger *slog.Logger) *FTPUploader {
	return &FTPUploader{
		creds:   creds,
		timeout: timeout,
		dial:    dialFTP,
		logger:  logger,
	}
}

// Upload sends files over a single FTP session.
func (u *FTPUploader) Upload(ctx context.Context, files []string) (domain.TransferReport, error) {
	var report domain.TransferReport
	if len(files) == 0 {
		return report, nil
	}

	addr := u.creds.Addr()
	conn, err := u.dial(ctx, addr, u.timeout)
	if err != nil {
		return report, fmt.Errorf("%w: dial %s: %w", domain.ErrConnectionLost, addr, err)
	}
	defer func() {
		if err := conn.Quit(); err != nil {
			u.logger.Debug("ftp quit", "error", err)
		}
	}()

	if err := conn.Login(u.creds.Username, u.creds.Password); err != nil {
		return report, classifyLogin(addr, u.creds.Username, err)
	}
	// Login leaves the session in binary mode.
	if err := conn.Type(ftp.TransferTypeASCII); err != nil {
		return report, fmt.Errorf("%w: TYPE A: %w", domain.ErrConnectionLost, err)
	}
	if dir := u.creds.RemoteDir; dir != "" {
		if err := conn.ChangeDir(dir); err != nil {
			if isFTPConnectionLost(err) {
				return report, fmt.Errorf("%w: CWD %s: %w", domain.ErrConnectionLost, dir, err)
			}
			return report, fmt.Errorf("%w: CWD %s: %w", domain.ErrTransfer, dir, err)
		}
	}
	u.logger.Info("ftp session open", "addr", addr, "files", len(files))

	for _, path := range files {
		if err := canceled(ctx); err != nil {
			return report, err
		}

		name := filepath.Base(path)
		err := u.store(conn, path, name)
		switch {
		case err == nil:
			report.Transferred = append(report.Transferred, path)
			u.logger.Info("file transferred", "file", name)
		case isFTPConnectionLost(err):
			return report, fmt.Errorf("%w: STOR %s: %w", domain.ErrConnectionLost, name, err)
		default:
			failure := fmt.Errorf("%w: STOR %s: %w", domain.ErrTransfer, name, err)
			report.Failed = append(report.Failed, domain.FileFailure{File: path, Err: failure})
			u.logger.Warn("file rejected", "file", name, "error", err)
		}
	}
	return report, nil
}

// store sends one file. Stor returns only after the server's final 226 reply,
// so a nil error is an acknowledged transfer.
func (u *FTPUploader) store(conn ftpConn, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return &localError{err: err}
	}
	defer f.Close()
	return conn.Stor(name, f)
}

// localError marks failures on the local side of a transfer.
type localError struct{ err error }

func (e *localError) Error() string { return "local: " + e.err.Error() }
func (e *localError) Unwrap() error { return e.err }

func classifyLogin(addr, user string, err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code != ftp.StatusNotAvailable {
		return fmt.Errorf("%w: %s@%s: %w", domain.ErrAuthentication, user, addr, err)
	}
	return fmt.Errorf("%w: login %s: %w", domain.ErrConnectionLost, addr, err)
}

// isFTPConnectionLost separates session-ending failures (421, EOF, network
// errors) from per-file rejections carrying any other reply code.
func isFTPConnectionLost(err error) bool {
	var local *localError
	if errors.As(err, &local) {
		return false
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code == ftp.StatusNotAvailable
	}
	return isNetworkFailure(err)
}
