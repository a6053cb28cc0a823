// Package remote talks to the HTTP hosts skills can be fetched from: the
// GitHub trees API used for update checks, and the providers that serve a
// SKILL.md (or a whole index of them) over plain HTTP.
package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/rs/zerolog"
)

// UserAgent is sent with every request.
const UserAgent = "returnmytime-cli"

// DefaultTimeout bounds a single HTTP request.
const DefaultTimeout = 30 * time.Second

const (
	// maxBodySize caps how much of a response body is read into memory.
	maxBodySize = 10 << 20
	// maxDownloadSize caps a download streamed to disk.
	maxDownloadSize = 512 << 20
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Fetcher performs GET requests with the CLI's User-Agent.
type Fetcher struct {
	client *http.Client
	logger zerolog.Logger
}

// NewFetcher creates a Fetcher. A nil client gets one with DefaultTimeout.
func NewFetcher(client *http.Client, logger zerolog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Fetcher{client: client, logger: logger}
}

// Do sends a GET with the given extra headers and reads the whole body. Only
// transport failures are errors; any HTTP status is returned as a Response.
func (f *Fetcher) Do(ctx context.Context, url string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrInvalidInput, "invalid url %q", url)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", UserAgent)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Wrap(ctx.Err(), apperrors.ErrCancelled, "request cancelled")
		}
		return nil, apperrors.Wrapf(err, apperrors.ErrFetchFailed, "fetching %s", url)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrFetchFailed, "reading %s", url)
	}

	f.logger.Debug().
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("http get")

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// GetText fetches url and returns its body. A 404 is ErrNotFound and any
// other non-2xx status is ErrFetchFailed.
func (f *Fetcher) GetText(ctx context.Context, url string) (string, error) {
	resp, err := f.Do(ctx, url, nil)
	if err != nil {
		return "", err
	}
	if err := statusError(url, resp.StatusCode); err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

// Download streams url into dest, creating its parent directory.
func (f *Fetcher) Download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrInvalidInput, "invalid url %q", url)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return apperrors.Wrap(ctx.Err(), apperrors.ErrCancelled, "download cancelled")
		}
		return apperrors.Wrapf(err, apperrors.ErrFetchFailed, "downloading %s", url)
	}
	defer resp.Body.Close()
	if err := statusError(url, resp.StatusCode); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.ErrFileWrite, "creating download directory")
	}
	out, err := os.Create(dest)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrFileWrite, "creating download file")
	}
	n, err := io.Copy(out, io.LimitReader(resp.Body, maxDownloadSize+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrFetchFailed, "downloading %s", url)
	}
	if n > maxDownloadSize {
		return apperrors.Newf(apperrors.ErrFetchFailed, "%s exceeds the %d MB download limit", url, maxDownloadSize>>20)
	}
	f.logger.Debug().Str("url", url).Int64("bytes", n).Msg("downloaded")
	return nil
}

func statusError(url string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return apperrors.Newf(apperrors.ErrNotFound, "%s: not found", url).WithDetail("status", status)
	default:
		return apperrors.Newf(apperrors.ErrFetchFailed, "%s: unexpected status %d", url, status).WithDetail("status", status)
	}
}

func describe(status int) string {
	return fmt.Sprintf("%d %s", status, http.StatusText(status))
}
