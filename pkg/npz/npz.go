// Package npz provides reading and writing of NumPy .npz archives.
//
// An .npz file is a zip archive whose members are .npy arrays. Member names
// are exposed without the ".npy" suffix, the way numpy's load() keys them.
package npz

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/Faultbox/smplkit/pkg/formats"
)

const memberSuffix = ".npy"

// ErrMemberNotFound is returned when reading a key the archive does not hold.
var ErrMemberNotFound = errors.New("npz member not found")

// Archive represents an opened .npz archive.
type Archive struct {
	closer  io.Closer
	members map[string]*zip.File
}

// Open opens an .npz archive for reading.
func Open(path string) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening npz: %w", err)
	}

	archive := newArchive(&rc.Reader)
	archive.closer = rc
	return archive, nil
}

// NewReader reads an archive from r, which holds size bytes.
func NewReader(r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("reading npz: %w", err)
	}
	return newArchive(zr), nil
}

func newArchive(zr *zip.Reader) *Archive {
	a := &Archive{members: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		a.members[normalizeKey(f.Name)] = f
	}
	return a
}

// Close closes the archive.
func (a *Archive) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// List returns all member keys in sorted order.
func (a *Archive) List() []string {
	result := make([]string, 0, len(a.members))
	for key := range a.members {
		result = append(result, key)
	}
	sort.Strings(result)
	return result
}

// Contains checks if a member exists.
func (a *Archive) Contains(key string) bool {
	_, ok := a.members[normalizeKey(key)]
	return ok
}

// Missing returns the keys from want that the archive does not hold.
func (a *Archive) Missing(want ...string) []string {
	var missing []string
	for _, key := range want {
		if !a.Contains(key) {
			missing = append(missing, key)
		}
	}
	return missing
}

// Read returns the raw .npy bytes of a member.
func (a *Archive) Read(key string) ([]byte, error) {
	f, ok := a.members[normalizeKey(key)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, key)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening member %s: %w", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading member %s: %w", key, err)
	}
	return data, nil
}

// Array reads and decodes a member.
func (a *Archive) Array(key string) (*formats.NPYArray, error) {
	data, err := a.Read(key)
	if err != nil {
		return nil, err
	}
	arr, err := formats.ParseNPY(data)
	if err != nil {
		return nil, fmt.Errorf("member %s: %w", key, err)
	}
	return arr, nil
}

func normalizeKey(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.TrimSuffix(name, memberSuffix)
}

// Writer builds an .npz archive.
type Writer struct {
	zw *zip.Writer
}

// NewWriter returns a Writer that writes the archive to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{zw: zip.NewWriter(w)}
}

// Add stores npy as member key. Members are deflated, as np.savez_compressed does.
func (w *Writer) Add(key string, npy []byte) error {
	f, err := w.zw.CreateHeader(&zip.FileHeader{
		Name:   normalizeKey(key) + memberSuffix,
		Method: zip.Deflate,
	})
	if err != nil {
		return fmt.Errorf("adding member %s: %w", key, err)
	}
	if _, err := f.Write(npy); err != nil {
		return fmt.Errorf("writing member %s: %w", key, err)
	}
	return nil
}

// Close finishes the archive. It does not close the underlying writer.
func (w *Writer) Close() error {
	return w.zw.Close()
}

// Create writes an archive with the given members to path, in key order.
func Create(path string, members map[string][]byte) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating npz: %w", err)
	}

	w := NewWriter(file)
	keys := make([]string, 0, len(members))
	for key := range members {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := w.Add(key, members[key]); err != nil {
			file.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		file.Close()
		return fmt.Errorf("finishing npz: %w", err)
	}
	return file.Close()
}
