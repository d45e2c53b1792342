package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"rd3/internal/blob/core"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestStoreRoundTripAndIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()
	meta := map[string]string{"run-id": "r1"}
	if _, err := s.Put(ctx, "r1/report.json", strings.NewReader("one"), core.PutOptions{Metadata: meta}); err != nil {
		t.Fatalf("put: %v", err)
	}
	meta["run-id"] = "mutated"
	if _, err := s.Put(ctx, "r1/report.json", strings.NewReader("two"), core.PutOptions{Metadata: map[string]string{"run-id": "r1"}}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	info, rc, err := s.Get(ctx, "r1/report.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if string(b) != "two" || info.Metadata["run-id"] != "r1" {
		t.Fatalf("unexpected %q %+v", b, info)
	}
	info.Metadata["run-id"] = "changed"
	again, _, _ := s.Get(ctx, "r1/report.json")
	if again.Metadata["run-id"] != "r1" {
		t.Fatalf("metadata leaked")
	}
	if _, err := s.Put(ctx, "r2/x.txt", strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	list, _ := s.List(ctx, "r1/")
	if len(list) != 1 || list[0].Key != "r1/report.json" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestStoreErrors(t *testing.T) {
	ctx := context.Background()
	s := New()
	if s.Driver() != core.DriverMemory || s.Location("a") != "memory://a" {
		t.Fatalf("unexpected driver or location")
	}
	if _, _, err := s.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.Put(ctx, "x", failingReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected read error")
	}
	if _, err := s.Put(ctx, "../x", strings.NewReader(""), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected invalid key, got %v", err)
	}
}
