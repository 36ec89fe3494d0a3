// Package store keeps uploaded images on disk until they are recognized.
package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/yylt/ocrmux/pkg"
	"github.com/yylt/ocrmux/pkg/encode"
	"k8s.io/klog/v2"
)

type Upload struct {
	ID   string
	Name string
	// afs url of the stored file
	Path string
}

type Store struct {
	dir       string
	retention time.Duration
	fs        afs.Service
}

// New stores uploads under dir, a local path or an afs url such as mem://localhost/temp.
func New(dir string, retention time.Duration) (*Store, error) {
	if dir == "" {
		dir = "temp"
	}
	if !strings.Contains(dir, "://") {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, err
		}
		dir = abs
	}
	return &Store{
		dir:       dir,
		retention: retention,
		fs:        afs.New(),
	}, nil
}

// Save writes r as <dir>/<uuid>/<base name>.
func (s *Store) Save(ctx context.Context, name string, r io.Reader) (*Upload, error) {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, "\\", "/")))
	if !encode.Supported(base) {
		return nil, fmt.Errorf("%w: '%s'", pkg.ErrUnsupportedImage, name)
	}
	up := &Upload{
		ID:   uuid.NewString(),
		Name: base,
	}
	up.Path = s.join(up.ID, base)
	err := s.fs.Create(ctx, s.join(up.ID), os.ModePerm, true)
	if err != nil {
		return nil, fmt.Errorf("create upload dir failed: %w", err)
	}
	err = s.fs.Upload(ctx, up.Path, 0o644, r)
	if err != nil {
		if derr := s.fs.Delete(ctx, s.join(up.ID)); derr != nil {
			klog.Warningf("remove upload dir %s failed: %v", up.ID, derr)
		}
		return nil, fmt.Errorf("save upload %s failed: %w", base, err)
	}
	klog.V(2).Infof("saved upload '%s' as %s", base, up.Path)
	return up, nil
}

// Get finds the upload saved under id.
func (s *Store) Get(ctx context.Context, id string) (*Upload, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid upload id '%s'", id)
	}
	objs, err := s.fs.List(ctx, s.join(id))
	if err != nil {
		return nil, fmt.Errorf("upload %s not found: %w", id, err)
	}
	for _, o := range objs {
		if o.IsDir() {
			continue
		}
		return &Upload{
			ID:   id,
			Name: o.Name(),
			Path: s.join(id, o.Name()),
		}, nil
	}
	return nil, fmt.Errorf("upload %s not found", id)
}

func (s *Store) Read(ctx context.Context, up *Upload) ([]byte, error) {
	return s.fs.DownloadWithURL(ctx, up.Path)
}

// Sweep removes uploads older than the retention; zero retention keeps everything.
func (s *Store) Sweep(ctx context.Context, now time.Time) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	ok, err := s.fs.Exists(ctx, s.dir)
	if err != nil || !ok {
		return 0, err
	}
	objs, err := s.fs.List(ctx, s.dir)
	if err != nil {
		return 0, err
	}
	var n int
	for _, o := range objs {
		if !s.expired(o, now) {
			continue
		}
		if err := s.fs.Delete(ctx, s.join(o.Name())); err != nil {
			klog.Warningf("delete upload %s failed: %v", o.Name(), err)
			continue
		}
		n++
	}
	return n, nil
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if s.retention <= 0 || interval <= 0 {
		return
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			n, err := s.Sweep(ctx, now)
			if err != nil {
				klog.Warningf("sweep uploads failed: %v", err)
			} else if n > 0 {
				klog.Infof("removed %d expired uploads", n)
			}
		}
	}
}

func (s *Store) expired(o storage.Object, now time.Time) bool {
	if !o.IsDir() {
		return false
	}
	if _, err := uuid.Parse(o.Name()); err != nil {
		return false
	}
	return now.Sub(o.ModTime()) > s.retention
}

func (s *Store) join(elem ...string) string {
	return strings.TrimRight(s.dir, "/") + "/" + path.Join(elem...)
}
