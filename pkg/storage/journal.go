package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// Block is one journal entry: the transactions a block finalized with
type Block struct {
	Height int64    `json:"height"`
	Time   int64    `json:"time"` // Unix seconds
	Txs    [][]byte `json:"txs"`
}

// Journal records finalized blocks so a node can be replayed from genesis
type Journal interface {
	Append(b Block) error
}

type NopJournal struct{}

func (NopJournal) Append(Block) error { return nil }

// FileJournal appends one JSON line per block
type FileJournal struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileJournal(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{f: f}, nil
}

func (j *FileJournal) Append(b Block) error {
	line, err := json.Marshal(b)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = fmt.Fprintln(j.f, string(line))
	return err
}

func (j *FileJournal) Close() error { return j.f.Close() }

// ReadJournal decodes every block of a journal in order
func ReadJournal(r io.Reader) ([]Block, error) {
	var out []Block
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<28)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var b Block
		if err := json.Unmarshal(sc.Bytes(), &b); err != nil {
			return nil, fmt.Errorf("journal line %d: %w", line, err)
		}
		out = append(out, b)
	}
	return out, sc.Err()
}

var _ Journal = NopJournal{}
var _ Journal = (*FileJournal)(nil)
