package feed

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/wonny/flof/backend/internal/contracts"
)

// Record types carried by the JSONL/websocket feed
const (
	RecordTick      = "tick"
	RecordBar       = "bar"
	RecordContext   = "context"
	RecordHeartbeat = "heartbeat"
)

// Record is one feed message.
// 형식: {"type":"tick","ts":...,"price":...,"size":...,"side":1}
//
//	{"type":"bar","ts":...,"open":...,"high":...,"low":...,"close":...,"volume":...}
//	{"type":"context", ...시장 구조 필드...}
type Record struct {
	Type    string
	Tick    contracts.Tick
	Bar     contracts.Bar
	Context json.RawMessage // context 레코드 원문 (해석은 소비자 몫)
	Line    int
}

// TimestampNs returns the record's event time (0 for context records)
func (r Record) TimestampNs() int64 {
	switch r.Type {
	case RecordTick:
		return r.Tick.TimestampNs
	case RecordBar:
		return r.Bar.TimestampNs
	}
	return 0
}

type envelope struct {
	Type string `json:"type"`
}

// ParseRecord decodes one JSON message
func ParseRecord(data []byte) (Record, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Record{}, fmt.Errorf("decode envelope: %w", err)
	}

	rec := Record{Type: env.Type}
	switch env.Type {
	case RecordTick:
		if err := json.Unmarshal(data, &rec.Tick); err != nil {
			return Record{}, fmt.Errorf("decode tick: %w", err)
		}
	case RecordBar:
		if err := json.Unmarshal(data, &rec.Bar); err != nil {
			return Record{}, fmt.Errorf("decode bar: %w", err)
		}
	case RecordContext:
		rec.Context = append(json.RawMessage(nil), data...)
	case RecordHeartbeat:
	default:
		return Record{}, fmt.Errorf("unknown record type %q", env.Type)
	}
	return rec, nil
}

// Decoder reads JSONL records. Blank lines and lines starting with '#' are skipped.
type Decoder struct {
	scanner *bufio.Scanner
	line    int
}

// NewDecoder creates a decoder over r
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &Decoder{scanner: s}
}

// Next returns the next record, io.EOF at the end
func (d *Decoder) Next() (Record, error) {
	for d.scanner.Scan() {
		d.line++
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		rec, err := ParseRecord(line)
		if err != nil {
			return Record{}, fmt.Errorf("line %d: %w", d.line, err)
		}
		rec.Line = d.line
		return rec, nil
	}
	if err := d.scanner.Err(); err != nil {
		return Record{}, err
	}
	return Record{}, io.EOF
}
