package deadletter

import (
	"bufio"
	"encoding/json"
	"os"

	pipelineerrors "github.com/R3E-Network/assoc-pipeline/internal/errors"
)

// ReadAll loads every Entry currently in the JSONL file at path, skipping
// (rather than failing on) individually malformed lines — an operator
// tool scanning a DLQ file should not be blocked by one corrupt record.
func ReadAll(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, scanner.Err()
}

// Requeueable filters entries down to those whose classified error kind
// is Transient — the only class operator tooling re-enqueues
// automatically; other kinds are left for manual inspection.
func Requeueable(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.ErrorKind == string(pipelineerrors.Transient) {
			out = append(out, e)
		}
	}
	return out
}
