package artifact

import (
	"bufio"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// File is an output to be staged. Write renders its full content.
type File struct {
	Name     string // artifact name, see NameRegionTable etc.
	FileName string // base name in the publish directory
	Write    func(w io.Writer) error
}

// Publisher stages outputs in a directory and promotes them by rename.
type Publisher struct {
	dir    string
	logger *slog.Logger
}

// NewPublisher returns a Publisher for dir.
func NewPublisher(dir string, logger *slog.Logger) *Publisher {
	return &Publisher{dir: dir, logger: logger}
}

// Dir returns the publish directory.
func (p *Publisher) Dir() string { return p.dir }

// Staged is a set of written but unpublished outputs. Exactly one of Commit
// or Abort should be called.
type Staged struct {
	p     *Publisher
	mu    sync.Mutex
	files []stagedFile
	done  bool
}

type stagedFile struct {
	File
	tmp  string
	size int64
}

// Stage creates a staging set and writes files into it concurrently.
func (p *Publisher) Stage(ctx context.Context, files ...File) (*Staged, error) {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create publish dir: %w", err)
	}
	s := &Staged{p: p}
	if err := s.Add(ctx, files...); err != nil {
		s.Abort()
		return nil, err
	}
	return s, nil
}

// Add writes more files into the staging set. Staging order follows the
// argument order.
func (s *Staged) Add(ctx context.Context, files ...File) error {
	staged := make([]stagedFile, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			sf, err := s.p.writeTemp(ctx, f)
			staged[i] = sf
			if err != nil {
				return fmt.Errorf("stage %s: %w", f.Name, err)
			}
			return nil
		})
	}
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sf := range staged {
		if sf.tmp != "" {
			s.files = append(s.files, sf)
		}
	}
	return err
}

// TempPath returns the staging path of the named artifact.
func (s *Staged) TempPath(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		if f.Name == name {
			return f.tmp, true
		}
	}
	return "", false
}

// Artifacts describes the staged files in staging order.
func (s *Staged) Artifacts() []ArtifactInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ArtifactInfo, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, ArtifactInfo{Name: f.Name, File: f.FileName, Bytes: f.size})
	}
	return out
}

// Commit renames every staged file onto its final name. Case data is
// promoted first, then the region table, then the manifest. If a rename
// fails, files renamed before it stay published, the rest are removed and
// the manifest on disk still describes the previous run. Readers detect the
// mismatch through the manifest's recorded sizes.
func (s *Staged) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return errors.New("staging set already finished")
	}
	s.done = true

	files := slices.Clone(s.files)
	slices.SortStableFunc(files, func(a, b stagedFile) int {
		return cmp.Compare(commitRank(a.Name), commitRank(b.Name))
	})
	for i, f := range files {
		final := filepath.Join(s.p.dir, f.FileName)
		if err := os.Rename(f.tmp, final); err != nil {
			for _, rest := range files[i:] {
				os.Remove(rest.tmp) //nolint:errcheck // best-effort cleanup
			}
			s.p.logger.Error("publish interrupted",
				"artifact", f.Name, "promoted", i, "remaining", len(files)-i, "error", err)
			return fmt.Errorf("publish %s: %w", f.FileName, err)
		}
		s.p.logger.Debug("artifact published", "artifact", f.Name, "path", final, "bytes", f.size)
	}
	return nil
}

// commitRank orders promotion so the region table never names regions the
// published case data lacks, and the manifest lands last.
func commitRank(name string) int {
	switch name {
	case NameManifest:
		return 2
	case NameRegionTable:
		return 1
	default:
		return 0
	}
}

// Abort removes every staged file.
func (s *Staged) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	for _, f := range s.files {
		if err := os.Remove(f.tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.p.logger.Warn("remove staged artifact failed", "path", f.tmp, "error", err)
		}
	}
}

func (p *Publisher) writeTemp(ctx context.Context, f File) (stagedFile, error) {
	if err := ctx.Err(); err != nil {
		return stagedFile{}, err
	}
	if f.FileName == "" || filepath.Base(f.FileName) != f.FileName {
		return stagedFile{}, fmt.Errorf("invalid file name %q", f.FileName)
	}

	tmp, err := os.CreateTemp(p.dir, "."+f.FileName+".tmp-*")
	if err != nil {
		return stagedFile{}, err
	}
	sf := stagedFile{File: f, tmp: tmp.Name()}

	bw := bufio.NewWriterSize(tmp, 1<<16)
	cw := &countingWriter{w: bw}
	err = f.Write(cw)
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = tmp.Sync()
	}
	if err == nil {
		err = tmp.Chmod(0o644)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	sf.size = cw.n
	return sf, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
