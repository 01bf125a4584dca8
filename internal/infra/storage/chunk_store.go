package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"calmwave-audio-service/internal/domain"
)

// ChunkStore accumulates sequentially numbered raw audio fragments under a
// per-submission directory. Filenames carry zero-padded sequence numbers so a
// plain sorted directory listing equals upload order with no extra index.
type ChunkStore struct {
	root string
}

func NewChunkStore(root string) (*ChunkStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create chunk root: %w", err)
	}
	return &ChunkStore{root: root}, nil
}

// Dir returns the per-submission chunk directory.
func (s *ChunkStore) Dir(id string) string {
	return filepath.Join(s.root, id)
}

// Append writes one fragment. Re-sending the same sequence number lands on
// the same path, so duplicate deliveries overwrite instead of accumulating.
func (s *ChunkStore) Append(id string, seq int, data []byte) (string, error) {
	if id == "" || seq < 0 {
		return "", domain.ErrInvalidArgument
	}
	dir := s.Dir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create chunk dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("chunk_%05d", seq))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write chunk %d: %w", seq, err)
	}
	return path, nil
}

// List returns the stored fragment paths ordered by sequence number. The
// listing is a snapshot: fragments appended after it returns are not seen.
func (s *ChunkStore) List(id string) ([]string, error) {
	entries, err := os.ReadDir(s.Dir(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNoChunks
		}
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(s.Dir(id), e.Name()))
	}
	if len(paths) == 0 {
		return nil, domain.ErrNoChunks
	}
	sort.Strings(paths)
	return paths, nil
}

// Clear removes the whole chunk set.
func (s *ChunkStore) Clear(id string) error {
	return os.RemoveAll(s.Dir(id))
}
