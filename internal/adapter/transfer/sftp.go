package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/couchcryptid/ndbc-transfer/internal/config"
	"github.com/couchcryptid/ndbc-transfer/internal/domain"
)

// sftpSession is the remote file API used by SFTPUploader.
type sftpSession interface {
	Create(path string) (io.WriteCloser, error)
	Stat(path string) (os.FileInfo, error)
	Close() error
}

type sftpDialFunc func(ctx context.Context, creds config.Credentials, timeout time.Duration, logger *slog.Logger) (sftpSession, error)

// sftpClient adapts *sftp.Client and extends the connection deadline before
// every remote operation.
type sftpClient struct {
	client  *sftp.Client
	ssh     *ssh.Client
	conn    net.Conn
	timeout time.Duration
}

func (c *sftpClient) extend() {
	if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
}

func (c *sftpClient) Create(p string) (io.WriteCloser, error) {
	c.extend()
	f, err := c.client.Create(p)
	if err != nil {
		return nil, err
	}
	return &extendingWriter{f: f, extend: c.extend}, nil
}

func (c *sftpClient) Stat(p string) (os.FileInfo, error) {
	c.extend()
	return c.client.Stat(p)
}

func (c *sftpClient) Close() error {
	return errors.Join(c.client.Close(), c.ssh.Close())
}

type extendingWriter struct {
	f      *sftp.File
	extend func()
}

func (w *extendingWriter) Write(p []byte) (int, error) {
	w.extend()
	return w.f.Write(p)
}

func (w *extendingWriter) Close() error {
	w.extend()
	return w.f.Close()
}

func dialSFTP(ctx context.Context, creds config.Credentials, timeout time.Duration, logger *slog.Logger) (sftpSession, error) {
	auth, err := authMethods(creds)
	if err != nil {
		return nil, err
	}
	hostKey, err := hostKeyCallback(creds, logger)
	if err != nil {
		return nil, err
	}

	addr := creds.Addr()
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", domain.ErrConnectionLost, addr, err)
	}
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	})
	if err != nil {
		_ = conn.Close()
		return nil, classifyHandshake(addr, creds.Username, err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, fmt.Errorf("%w: start sftp subsystem: %w", domain.ErrConnectionLost, err)
	}
	return &sftpClient{client: client, ssh: sshClient, conn: conn, timeout: timeout}, nil
}

func authMethods(creds config.Credentials) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if creds.PrivateKeyFile != "" {
		pem, err := os.ReadFile(creds.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: read private key: %w", domain.ErrAuthentication, err)
		}
		var signer ssh.Signer
		if creds.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(creds.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parse private key %s: %w", domain.ErrAuthentication, creds.PrivateKeyFile, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if creds.Password != "" {
		methods = append(methods, ssh.Password(creds.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: no password or private key configured", domain.ErrAuthentication)
	}
	return methods, nil
}

func hostKeyCallback(creds config.Credentials, logger *slog.Logger) (ssh.HostKeyCallback, error) {
	if creds.KnownHostsFile == "" {
		logger.Warn("sftp host key verification disabled; set known_hosts_file", "host", creds.Host)
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // opt-in via missing known_hosts_file
	}
	cb, err := knownhosts.New(creds.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: load known hosts: %w", domain.ErrAuthentication, err)
	}
	return cb, nil
}

func classifyHandshake(addr, user string, err error) error {
	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) || strings.Contains(err.Error(), "unable to authenticate") {
		return fmt.Errorf("%w: %s@%s: %w", domain.ErrAuthentication, user, addr, err)
	}
	return fmt.Errorf("%w: ssh handshake %s: %w", domain.ErrConnectionLost, addr, err)
}

// SFTPUploader transfers files over SFTP.
type SFTPUploader struct {
	creds   config.Credentials
	timeout time.Duration
	dial    sftpDialFunc
	logger  *slog.Logger
}

// NewSFTP creates an SFTP uploader.
func NewSFTP(creds config.Credentials, timeout time.Duration, logger *slog.Logger) *SFTPUploader {
	return &SFTPUploader{
		creds:   creds,
		timeout: timeout,
		dial:    dialSFTP,
		logger:  logger,
	}
}

// Upload sends files over a single SFTP session and verifies each remote
// size against the local file.
func (u *SFTPUploader) Upload(ctx context.Context, files []string) (domain.TransferReport, error) {
	var report domain.TransferReport
	if len(files) == 0 {
		return report, nil
	}

	sess, err := u.dial(ctx, u.creds, u.timeout, u.logger)
	if err != nil {
		return report, err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			u.logger.Debug("sftp close", "error", err)
		}
	}()
	u.logger.Info("sftp session open", "addr", u.creds.Addr(), "files", len(files))

	for _, local := range files {
		if err := canceled(ctx); err != nil {
			return report, err
		}

		name := filepath.Base(local)
		err := u.put(sess, local, path.Join(u.creds.RemoteDir, name))
		switch {
		case err == nil:
			report.Transferred = append(report.Transferred, local)
			u.logger.Info("file transferred", "file", name)
		case isSFTPConnectionLost(err):
			return report, fmt.Errorf("%w: put %s: %w", domain.ErrConnectionLost, name, err)
		default:
			failure := fmt.Errorf("%w: put %s: %w", domain.ErrTransfer, name, err)
			report.Failed = append(report.Failed, domain.FileFailure{File: local, Err: failure})
			u.logger.Warn("file rejected", "file", name, "error", err)
		}
	}
	return report, nil
}

func (u *SFTPUploader) put(sess sftpSession, local, remote string) error {
	f, err := os.Open(local)
	if err != nil {
		return &localError{err: err}
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return &localError{err: err}
	}

	w, err := sess.Create(remote)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	st, err := sess.Stat(remote)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if st.Size() != info.Size() {
		return fmt.Errorf("verify: remote size %d, local size %d", st.Size(), info.Size())
	}
	return nil
}

func isSFTPConnectionLost(err error) bool {
	var local *localError
	if errors.As(err, &local) {
		return false
	}
	if errors.Is(err, sftp.ErrSSHFxConnectionLost) || errors.Is(err, sftp.ErrSSHFxNoConnection) {
		return true
	}
	var status *sftp.StatusError
	if errors.As(err, &status) {
		return false
	}
	return isNetworkFailure(err)
}
