package extract

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// maxLineBytes bounds a single JSONL line; conversation records carrying
// large tool outputs can run well past bufio's default.
const maxLineBytes = 8 * 1024 * 1024

// streamJSONL reads a JSONL file line by line without loading it into
// memory. fn receives the 1-based line number and the raw record. Malformed
// lines are logged and counted, never fatal to the file; the returned count
// is the number of undecodable lines.
func streamJSONL(path string, fn func(lineNo int, raw json.RawMessage) error) (badLines int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 256*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			log.Warn().Str("file", path).Int("line", lineNo).Msg("invalid JSON line")
			badLines++
			continue
		}

		raw := make(json.RawMessage, len(line))
		copy(raw, line)
		if err := fn(lineNo, raw); err != nil {
			return badLines, err
		}
	}

	if err := scanner.Err(); err != nil {
		return badLines, fmt.Errorf("scan %s: %w", path, err)
	}
	return badLines, nil
}
