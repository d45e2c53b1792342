package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"rd3/internal/blob/core"
)

func TestStorePutGetList(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	if s.Driver() != core.DriverS3 {
		t.Fatalf("driver %s", s.Driver())
	}
	info, err := s.Put(ctx, "20240501/report.json", strings.NewReader(`{"ok":true}`), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"run-id": "abc"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "20240501/report.json" || info.Size != 11 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	// overwrite
	if _, err := s.Put(ctx, "20240501/report.json", strings.NewReader(`{"ok":false}`), core.PutOptions{}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, rc, err := s.Get(ctx, "20240501/report.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != `{"ok":false}` || got.Size != 12 {
		t.Fatalf("unexpected content %q %+v", b, got)
	}
	if _, err := s.Put(ctx, "20240501/errors.txt", strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Put(ctx, "other/metrics.prom", strings.NewReader("y"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	list, err := s.List(ctx, "20240501/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "20240501/errors.txt" || list[1].Key != "20240501/report.json" {
		t.Fatalf("unexpected list %+v", list)
	}
	all, err := s.List(ctx, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("list all: %v %+v", err, all)
	}
}

func TestStoreMissingAndInvalidKeys(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	if _, _, err := s.Get(ctx, "nope.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.Put(ctx, "../escape", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected invalid key, got %v", err)
	}
}

func TestLocationIncludesPrefix(t *testing.T) {
	s := newFakeStore()
	if got := s.Location("a/b.txt"); got != "s3://rd3-artifacts/runs/a/b.txt" {
		t.Fatalf("location %s", got)
	}
	s.prefix = ""
	if got := s.Location("a/b.txt"); got != "s3://rd3-artifacts/a/b.txt" {
		t.Fatalf("location %s", got)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
	s, err := New(context.Background(), Config{Bucket: "b", Endpoint: "http://localhost:9000", Prefix: "/rd3/", AccessKeyID: "k", SecretAccessKey: "s"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.prefix != "rd3" || s.bucket != "b" {
		t.Fatalf("unexpected store %+v", s)
	}
}

func TestUnchunk(t *testing.T) {
	if b := unchunk([]byte("5\r\nhello\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n")); string(b) != "hello" {
		t.Fatalf("unchunk: %q", b)
	}
	if b := unchunk([]byte("plain body")); string(b) != "plain body" {
		t.Fatalf("plain body changed: %q", b)
	}
	if b := unchunk([]byte("zz\r\nab\r\n0\r\n")); string(b) != "zz\r\nab\r\n0\r\n" {
		t.Fatalf("bad size decoded: %q", b)
	}
}
