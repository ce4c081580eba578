package vectorindex

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"mnemosyne/internal/model"
)

// walOp enumerates the mutations recorded to the write-ahead log.
type walOp string

const (
	walUpsert walOp = "upsert"
	walDelete walOp = "delete"
)

// walRecord is one WAL entry. Chunks is populated for walUpsert,
// ChunkIDs for walDelete.
type walRecord struct {
	Op       walOp         `json:"op"`
	Chunks   []model.Chunk `json:"chunks,omitempty"`
	ChunkIDs []string      `json:"chunk_ids,omitempty"`
}

// wal is an append-only, line-delimited JSON journal used for
// crash-safety: every mutation is durably recorded before it is applied
// to the in-memory index, and replayed on open (spec §4.3 "Writes are
// journalled (WAL) for crash-safety; recovery replays the WAL tail on
// open"). Grounded on the teacher's append-then-apply durability
// discipline for database writes (internal/persistence/databases/pool.go).
type wal struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

func openWAL(path string) (*wal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: open wal: %w", err)
	}
	return &wal{path: path, f: f}, nil
}

func (w *wal) append(rec walRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("vectorindex: marshal wal record: %w", err)
	}
	b = append(b, '\n')
	if _, err := w.f.Write(b); err != nil {
		return fmt.Errorf("vectorindex: write wal: %w", err)
	}
	return w.f.Sync()
}

// replay reads every record in the log and invokes apply for each,
// skipping trailing truncated/corrupt lines rather than failing the
// whole recovery (spec: "WAL corruption → fail open with last-known-good
// snapshot", i.e. recover as much of the tail as is parseable).
func replayWAL(path string, apply func(walRecord)) (corrupted bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("vectorindex: open wal for replay: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec walRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			corrupted = true
			continue
		}
		apply(rec)
	}
	if err := scanner.Err(); err != nil {
		corrupted = true
	}
	return corrupted, nil
}

func (w *wal) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}
