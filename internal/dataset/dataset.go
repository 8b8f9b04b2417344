// Package dataset stores normalized face samples as image files named
// User.<subject>.<sequence>.jpg inside a single directory.
package dataset

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/renameio"

	"github.com/amirhossein5/facecheck/internal/imaging"
)

const (
	filePrefix = "User"
	fileExt    = ".jpg"
)

var ErrInvalidIdentifier = errors.New("invalid subject identifier")

type Sample struct {
	Subject  string
	Sequence int
	Path     string
}

type Dataset struct {
	dir string
}

func New(dir string) (*Dataset, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dataset dir: %w", err)
	}
	return &Dataset{dir: dir}, nil
}

func (d *Dataset) Dir() string { return d.dir }

// ValidateIdentifier reports whether id can be embedded in a sample file name.
func ValidateIdentifier(id string) error {
	if id == "" || strings.ContainsAny(id, `./\`) || strings.TrimSpace(id) != id {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	return nil
}

// FileName returns the base name of the seq-th sample of subject.
func FileName(subject string, seq int) string {
	return fmt.Sprintf("%s.%s.%d%s", filePrefix, subject, seq, fileExt)
}

// ParseFileName is the inverse of FileName.
func ParseFileName(name string) (subject string, seq int, ok bool) {
	if !strings.HasSuffix(name, fileExt) {
		return "", 0, false
	}
	parts := strings.Split(strings.TrimSuffix(name, fileExt), ".")
	if len(parts) != 3 || parts[0] != filePrefix || parts[1] == "" {
		return "", 0, false
	}
	seq, err := strconv.Atoi(parts[2])
	if err != nil || seq < 1 {
		return "", 0, false
	}
	return parts[1], seq, true
}

func (d *Dataset) Save(subject string, seq int, img *image.Gray) (string, error) {
	path := filepath.Join(d.dir, FileName(subject, seq))
	t, err := renameio.TempFile(d.dir, path)
	if err != nil {
		return "", fmt.Errorf("save sample: %w", err)
	}
	defer t.Cleanup()

	if err := imaging.EncodeJPEG(t, img); err != nil {
		return "", fmt.Errorf("encode sample: %w", err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("save sample: %w", err)
	}
	return path, nil
}

// Remove deletes every sample whose identifier equals subject exactly and
// returns how many files were removed.
func (d *Dataset) Remove(subject string) (int, error) {
	samples, err := d.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, s := range samples {
		if s.Subject != subject {
			continue
		}
		if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("remove sample %s: %w", s.Path, err)
		}
		removed++
	}
	return removed, nil
}

// List returns all samples sorted by file name. Files that do not follow the
// naming scheme are ignored.
func (d *Dataset) List() ([]Sample, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list dataset: %w", err)
	}

	var samples []Sample
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		subject, seq, ok := ParseFileName(e.Name())
		if !ok {
			continue
		}
		samples = append(samples, Sample{
			Subject:  subject,
			Sequence: seq,
			Path:     filepath.Join(d.dir, e.Name()),
		})
	}
	sort.Slice(samples, func(i, j int) bool {
		return filepath.Base(samples[i].Path) < filepath.Base(samples[j].Path)
	})
	return samples, nil
}
