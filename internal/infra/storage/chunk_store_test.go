package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"calmwave-audio-service/internal/domain"
)

func TestChunkStoreOrdering(t *testing.T) {
	cs, err := NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	// Append out of arrival order; listing must still follow sequence order.
	for _, seq := range []int{3, 0, 2, 1} {
		if _, err := cs.Append("sess-1", seq, []byte{byte(seq)}); err != nil {
			t.Fatalf("Append(%d): %v", seq, err)
		}
	}

	paths, err := cs.List("sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 4 {
		t.Fatalf("got %d chunks, want 4", len(paths))
	}
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatal(err)
		}
		if len(data) != 1 || data[0] != byte(i) {
			t.Fatalf("chunk %d holds %v, want [%d]", i, data, i)
		}
	}
}

func TestChunkStoreDuplicateSequenceOverwrites(t *testing.T) {
	cs, err := NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cs.Append("sess-2", 0, []byte("first")); err != nil {
		t.Fatal(err)
	}
	if _, err := cs.Append("sess-2", 0, []byte("second")); err != nil {
		t.Fatal(err)
	}
	paths, err := cs.List("sess-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 {
		t.Fatalf("got %d chunks, want 1 after duplicate append", len(paths))
	}
	data, _ := os.ReadFile(paths[0])
	if string(data) != "second" {
		t.Fatalf("duplicate append kept %q, want last write", data)
	}
}

func TestChunkStoreEmptyAndClear(t *testing.T) {
	cs, err := NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cs.List("unknown"); !errors.Is(err, domain.ErrNoChunks) {
		t.Fatalf("List(unknown) err = %v, want ErrNoChunks", err)
	}

	if _, err := cs.Append("sess-3", 0, []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := cs.Clear("sess-3"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(cs.Dir("sess-3")); !os.IsNotExist(err) {
		t.Fatal("chunk dir still present after Clear")
	}
	if _, err := cs.List("sess-3"); !errors.Is(err, domain.ErrNoChunks) {
		t.Fatalf("List after Clear err = %v, want ErrNoChunks", err)
	}
}

func TestChunkStoreRejectsBadArgs(t *testing.T) {
	cs, err := NewChunkStore(filepath.Join(t.TempDir(), "chunks"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cs.Append("", 0, nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("Append with empty id err = %v", err)
	}
	if _, err := cs.Append("id", -1, nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("Append with negative seq err = %v", err)
	}
}
