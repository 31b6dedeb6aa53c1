// Package fetch downloads the source table over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/couchcryptid/case-data-etl/internal/adapter/csvsource"
	"github.com/couchcryptid/case-data-etl/internal/pipeline"
)

// Source is a pipeline.Source that downloads a CSV document on every run.
// The body is spooled to a temporary file so a failed transfer can be
// retried from the start.
type Source struct {
	url        string
	client     *http.Client
	maxElapsed time.Duration
	interval   time.Duration
	logger     *slog.Logger
}

// NewSource creates a Source for url. timeout bounds each attempt and
// maxElapsed bounds all attempts together.
func NewSource(url string, timeout, maxElapsed time.Duration, logger *slog.Logger) *Source {
	return &Source{
		url:        url,
		client:     &http.Client{Timeout: timeout},
		maxElapsed: maxElapsed,
		interval:   500 * time.Millisecond,
		logger:     logger,
	}
}

// Open downloads the document and reads its header.
func (s *Source) Open(ctx context.Context) (pipeline.BatchExtractor, error) {
	path, err := s.download(ctx)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		os.Remove(path) //nolint:errcheck // best-effort cleanup
		return nil, err
	}
	spool := &spoolFile{File: f}
	ext, err := csvsource.NewExtractor(f, spool)
	if err != nil {
		spool.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("%s: %w", s.url, err)
	}
	return ext, nil
}

func (s *Source) download(ctx context.Context) (string, error) {
	var path string
	attempt := 0

	op := func() error {
		attempt++
		p, err := s.fetchOnce(ctx)
		if err != nil {
			return err
		}
		path = p
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.interval
	b.MaxElapsedTime = s.maxElapsed

	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		s.logger.Warn("source download failed, retrying",
			"url", s.url,
			"attempt", attempt,
			"retry_in", next,
			"error", err,
		)
	})
	if err != nil {
		return "", fmt.Errorf("download source: %w", err)
	}
	s.logger.Info("source downloaded", "url", s.url, "attempts", attempt)
	return path, nil
}

func (s *Source) fetchOnce(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %s", resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	tmp, err := os.CreateTemp("", "case-source-*.csv")
	if err != nil {
		return "", backoff.Permanent(err)
	}
	_, err = io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup
		return "", fmt.Errorf("read body: %w", err)
	}
	return tmp.Name(), nil
}

// spoolFile removes the downloaded file when closed.
type spoolFile struct {
	*os.File
}

func (f *spoolFile) Close() error {
	return errors.Join(f.File.Close(), os.Remove(f.Name()))
}
