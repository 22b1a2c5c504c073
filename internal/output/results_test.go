package output

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestAppendResultsConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := RunRecord{
				Timestamp:   time.Now().UTC(),
				Connections: i + 1,
				Requests:    1,
				Report:      NewReport("run", "127.0.0.1:1234", sampleStats()),
			}
			if err := AppendResults(path, rec); err != nil {
				t.Errorf("AppendResults() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	records, err := ReadResults(path)
	if err != nil {
		t.Fatalf("ReadResults() error = %v", err)
	}
	if len(records) != 8 {
		t.Fatalf("got %d records, want 8", len(records))
	}
	seen := map[int]bool{}
	for _, rec := range records {
		seen[rec.Connections] = true
		if rec.Sessions != 10 || rec.Target != "127.0.0.1:1234" {
			t.Errorf("record = %+v", rec)
		}
	}
	if len(seen) != 8 {
		t.Errorf("distinct records = %d, want 8", len(seen))
	}
}

func TestReadResultsMissingFile(t *testing.T) {
	records, err := ReadResults(filepath.Join(t.TempDir(), "none.jsonl"))
	if err != nil || records != nil {
		t.Fatalf("ReadResults() = %v, %v; want nil, nil", records, err)
	}
}
