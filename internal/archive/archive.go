// Package archive uploads stored recordings to a remote FTP(S) server.
package archive

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog"

	"github.com/sweeney/repeater/internal/recordings"
)

// Options configure the FTP server connection.
type Options struct {
	Host    string
	Port    int
	TLS     bool
	Timeout time.Duration
	User    string
	Pass    string

	// Dir is the remote directory files are stored in.
	Dir string

	// DeleteOnSuccess removes the local copy after a successful upload.
	DeleteOnSuccess bool
}

// Client is the part of an FTP connection the uploader uses.
type Client interface {
	Stor(path string, r io.Reader) error
	Quit() error
}

// Store is the recordings index.
type Store interface {
	Pending() ([]recordings.Recording, error)
	MarkUploaded(id int64, at time.Time) error
	Delete(id int64) error
}

// Result counts the outcome of one archive run.
type Result struct {
	Uploaded int
	Failed   int
}

// Uploader uploads every pending recording in one session.
type Uploader struct {
	opts  Options
	store Store
	log   zerolog.Logger

	dial func(ctx context.Context) (Client, error)
	now  func() time.Time
}

// NewUploader creates an Uploader connecting with opts.
func NewUploader(opts Options, store Store, log zerolog.Logger) *Uploader {
	u := &Uploader{opts: opts, store: store, log: log, now: time.Now}
	u.dial = u.dialFTP
	return u
}

func (u *Uploader) dialFTP(ctx context.Context) (Client, error) {
	addr := net.JoinHostPort(u.opts.Host, strconv.Itoa(u.opts.Port))
	dialOpts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(u.opts.Timeout),
	}
	if u.opts.TLS {
		dialOpts = append(dialOpts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: u.opts.Host}))
	}

	conn, err := ftp.Dial(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	if err := conn.Login(u.opts.User, u.opts.Pass); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("login to %s: %w", addr, err)
	}
	return conn, nil
}

// Run uploads pending recordings. A failed upload is logged and counted,
// and the local file is kept. Connection failures are returned.
func (u *Uploader) Run(ctx context.Context) (Result, error) {
	var res Result

	pending, err := u.store.Pending()
	if err != nil {
		return res, err
	}
	if len(pending) == 0 {
		u.log.Info().Msg("no recordings to archive")
		return res, nil
	}

	client, err := u.dial(ctx)
	if err != nil {
		return res, err
	}
	defer client.Quit()

	for _, r := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := u.upload(client, r); err != nil {
			u.log.Warn().Err(err).Str("file", r.Path).Msg("upload failed")
			res.Failed++
			continue
		}
		res.Uploaded++
	}

	u.log.Info().Int("uploaded", res.Uploaded).Int("failed", res.Failed).Msg("archive run complete")
	return res, nil
}

func (u *Uploader) upload(client Client, r recordings.Recording) error {
	f, err := os.Open(r.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	remote := path.Join(u.opts.Dir, r.Name())
	if err := client.Stor(remote, f); err != nil {
		return fmt.Errorf("store %s: %w", remote, err)
	}
	if err := u.store.MarkUploaded(r.ID, u.now()); err != nil {
		return err
	}
	u.log.Debug().Str("file", r.Name()).Str("remote", remote).Msg("uploaded")

	if u.opts.DeleteOnSuccess {
		if err := u.store.Delete(r.ID); err != nil {
			u.log.Warn().Err(err).Str("file", r.Path).Msg("could not delete local copy")
		}
	}
	return nil
}
