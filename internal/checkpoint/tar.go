package checkpoint

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TarSnapshotter is the default Snapshotter: each snapshot is a gzipped tar
// archive of workDir's contents, stored alongside a small JSON metadata
// sidecar, under dir.
type TarSnapshotter struct {
	dir string
}

// NewTarSnapshotter returns a TarSnapshotter rooted at dir. dir need not
// exist yet; Snapshot creates it on first use.
func NewTarSnapshotter(dir string) *TarSnapshotter {
	return &TarSnapshotter{dir: dir}
}

func (s *TarSnapshotter) archivePath(id string) string { return filepath.Join(s.dir, id+".tar.gz") }
func (s *TarSnapshotter) metaPath(id string) string    { return filepath.Join(s.dir, id+".json") }

// Snapshot implements Snapshotter.
func (s *TarSnapshotter) Snapshot(workDir, label string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return "", fmt.Errorf("checkpoint: create snapshot dir: %w", err)
	}

	id := uuid.NewString()
	path := s.archivePath(id)
	if err := writeTarball(path, workDir); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("checkpoint: snapshot %s: %w", workDir, err)
	}

	meta := Record{ID: id, Label: label, CreatedAt: time.Now()}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("checkpoint: marshal metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(id), data, 0o600); err != nil {
		return "", fmt.Errorf("checkpoint: write metadata: %w", err)
	}
	return id, nil
}

func writeTarball(path, workDir string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	err = filepath.WalkDir(workDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(workDir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		file, err := os.Open(p)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(tw, file)
		return err
	})
	if err != nil {
		tw.Close()
		gz.Close()
		return fmt.Errorf("walk %s: %w", workDir, err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar writer: %w", err)
	}
	return gz.Close()
}

// List implements Snapshotter.
func (s *TarSnapshotter) List() ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: list: %w", err)
	}

	var records []Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.After(records[j].CreatedAt) })
	return records, nil
}

// Restore implements Snapshotter.
func (s *TarSnapshotter) Restore(id, destDir string) error {
	f, err := os.Open(s.archivePath(id))
	if err != nil {
		return fmt.Errorf("checkpoint: open snapshot %s: %w", id, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("checkpoint: gzip reader: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("checkpoint: read tar entry: %w", err)
		}

		target := filepath.Join(destDir, hdr.Name)
		if hdr.FileInfo().IsDir() || strings.HasSuffix(hdr.Name, "/") {
			if err := os.MkdirAll(target, 0o700); err != nil {
				return fmt.Errorf("checkpoint: mkdir %s: %w", target, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
			return fmt.Errorf("checkpoint: mkdir %s: %w", filepath.Dir(target), err)
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, hdr.FileInfo().Mode().Perm())
		if err != nil {
			return fmt.Errorf("checkpoint: create %s: %w", target, err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return fmt.Errorf("checkpoint: write %s: %w", target, err)
		}
		out.Close()
	}
}
