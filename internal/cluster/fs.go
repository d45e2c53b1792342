// Package cluster reads release directories on the cluster filesystem,
// either locally or over SSH, and parses the pedigree and phenopacket files
// found there.
package cluster

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Entry describes a regular file found by Walk.
type Entry struct {
	Inode uint64
	Name  string
	Path  string
	Ext   string
	Size  int64
}

// FS is the read-only view of the cluster filesystem the engine needs.
type FS interface {
	// Walk returns every regular file below root, depth first, ordered by path.
	Walk(ctx context.Context, root string) ([]Entry, error)
	// Open returns the content of a file.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// MD5 returns the hex digest of a file.
	MD5(ctx context.Context, path string) (string, error)
}

// StructuralError reports a cluster file that cannot be used: a malformed
// PED line, unreadable phenopacket JSON, a checksum mismatch or a timeout.
type StructuralError struct {
	Path   string
	Line   int
	Reason string
	Err    error
}

func (e *StructuralError) Error() string {
	msg := e.Path
	if e.Line > 0 {
		msg = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StructuralError) Unwrap() error { return e.Err }

func newEntry(inode uint64, p string, size int64) Entry {
	name := path.Base(filepath.ToSlash(p))
	return Entry{Inode: inode, Name: name, Path: p, Ext: strings.ToLower(path.Ext(name)), Size: size}
}

// Local reads the filesystem of the current host.
type Local struct{}

// Walk implements FS. Symlinks are reported by their own inode and not followed.
func (Local) Walk(ctx context.Context, root string) ([]Entry, error) {
	var out []Entry
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := os.Lstat(p)
		if err != nil {
			return err
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		out = append(out, newEntry(inodeOf(info), abs, info.Size()))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Open implements FS.
func (Local) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(p)
}

// MD5 implements FS.
func (Local) MD5(ctx context.Context, p string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Listing is the result of scanning one release sub-directory.
type Listing struct {
	Files []Entry
	// Checksums maps a payload path to its .md5 companion.
	Checksums map[string]Entry
}

// Scan walks dir and keeps files with extension ext plus their .md5 companions.
func Scan(ctx context.Context, fsys FS, dir, ext string) (Listing, error) {
	entries, err := fsys.Walk(ctx, dir)
	if err != nil {
		return Listing{}, err
	}
	listing := Listing{Checksums: map[string]Entry{}}
	for _, e := range entries {
		switch {
		case e.Ext == ext:
			listing.Files = append(listing.Files, e)
		case e.Ext == ".md5":
			listing.Checksums[strings.TrimSuffix(e.Path, ".md5")] = e
		}
	}
	sort.Slice(listing.Files, func(i, j int) bool { return listing.Files[i].Path < listing.Files[j].Path })
	return listing, nil
}

// VerifyChecksum compares a file with its companion digest. Files without a
// companion pass.
func (l Listing) VerifyChecksum(ctx context.Context, fsys FS, file Entry) error {
	companion, ok := l.Checksums[file.Path]
	if !ok {
		return nil
	}
	rc, err := fsys.Open(ctx, companion.Path)
	if err != nil {
		return &StructuralError{Path: file.Path, Reason: "read md5 companion", Err: err}
	}
	raw, err := io.ReadAll(io.LimitReader(rc, 4096))
	_ = rc.Close()
	if err != nil {
		return &StructuralError{Path: file.Path, Reason: "read md5 companion", Err: err}
	}
	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return &StructuralError{Path: file.Path, Reason: "empty md5 companion"}
	}
	want := strings.ToLower(fields[0])
	got, err := fsys.MD5(ctx, file.Path)
	if err != nil {
		return &StructuralError{Path: file.Path, Reason: "compute md5", Err: err}
	}
	if got != want {
		return &StructuralError{Path: file.Path, Reason: fmt.Sprintf("md5 mismatch: expected %s, got %s", want, got)}
	}
	return nil
}
