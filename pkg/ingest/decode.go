// Package ingest feeds trace batches into a Session from files, a drop
// directory or a Redis pub/sub channel.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode"

	"github.com/rmax-ai/traceview/pkg/graph"
	"github.com/rmax-ai/traceview/pkg/trace"
)

// Applier consumes decoded batches. *engine.Session implements it.
type Applier interface {
	Apply(ctx context.Context, u trace.Update) (graph.Stats, error)
}

// DecodeUpdates reads trace batches from r. The input may be a single JSON
// object, a JSON array of objects or a stream of objects (JSONL).
func DecodeUpdates(r io.Reader) ([]trace.Update, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read updates: %w", err)
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var updates []trace.Update
		if err := dec.Decode(&updates); err != nil {
			return nil, fmt.Errorf("decode update array: %w", err)
		}
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return nil, errors.New("decode update array: unexpected data after array")
		}
		return updates, nil
	}

	var updates []trace.Update
	for {
		var u trace.Update
		err := dec.Decode(&u)
		if errors.Is(err, io.EOF) {
			return updates, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode update %d: %w", len(updates), err)
		}
		updates = append(updates, u)
	}
}

// ApplyAll applies updates in order and stops at the first error.
// It returns the number of batches applied.
func ApplyAll(ctx context.Context, a Applier, updates []trace.Update) (int, error) {
	for i, u := range updates {
		if _, err := a.Apply(ctx, u); err != nil {
			return i, fmt.Errorf("apply batch %d: %w", i, err)
		}
	}
	return len(updates), nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if !unicode.IsSpace(rune(b)) {
			return b, br.UnreadByte()
		}
	}
}
