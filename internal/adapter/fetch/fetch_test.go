package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const body = "date,country_region,province_state,admin2,case_type,cases,lat,long,fips\n" +
	"3/1/2020,Italy,,,Confirmed,1,41.87,12.56,\n"

func newTestSource(url string) *Source {
	s := NewSource(url, time.Second, 2*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.interval = time.Millisecond
	return s
}

func TestSource_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, body) //nolint:errcheck
	}))
	defer srv.Close()

	ext, err := newTestSource(srv.URL).Open(context.Background())
	require.NoError(t, err)

	batch, err := ext.ExtractBatch(context.Background(), 10)
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, batch, 1)
	assert.Equal(t, "Italy", batch[0].Fields["country_region"])
	assert.Equal(t, int32(3), calls.Load())

	require.NoError(t, ext.Close())
}

func TestSource_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestSource(srv.URL).Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSource_RemovesSpoolOnClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, body) //nolint:errcheck
	}))
	defer srv.Close()

	s := newTestSource(srv.URL)
	path, err := s.download(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)

	f, err := os.Open(path)
	require.NoError(t, err)
	require.NoError(t, (&spoolFile{File: f}).Close())
	assert.NoFileExists(t, path)
}

func TestSource_BadHeaderIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		io.WriteString(w, "<html>maintenance</html>\n") //nolint:errcheck
	}))
	defer srv.Close()

	_, err := newTestSource(srv.URL).Open(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
