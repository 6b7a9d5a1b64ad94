// Package transfer streams a converted file into the record store.
//
// A transfer is three phases against the store's write procedure, all keyed
// by the item identifier:
//
//  1. Begin: empty payload, start=true, end=false
//  2. Chunk*: fixed-size blocks of the file in order, base64 encoded,
//     start=false, end=false
//  3. End: empty payload, start=false, end=true
//
// Every call must be acknowledged with "ok". Any other response, or any read
// or store error, aborts the transfer; no further chunks are sent. Content the
// store already accepted is left in place and is reset by the next begin.
package transfer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/phsayre/pdf-uploader/internal/store"
)

// DefaultChunkSize is the block size read from the source file per chunk.
const DefaultChunkSize = 8192

// Phase names a step of the transfer protocol.
type Phase string

const (
	PhaseBegin Phase = "begin"
	PhaseChunk Phase = "chunk"
	PhaseEnd   Phase = "end"
)

// ProtocolError reports a response other than "ok" from the write procedure.
type ProtocolError struct {
	Phase    Phase
	Chunk    int // 0-based chunk index, only meaningful for PhaseChunk
	Response string
}

func (e *ProtocolError) Error() string {
	if e.Phase == PhaseChunk {
		return fmt.Sprintf("store rejected chunk %d: server said %q", e.Chunk, e.Response)
	}
	return fmt.Sprintf("store rejected %s: server said %q", e.Phase, e.Response)
}

// Writer is the write entry point of the record store.
type Writer interface {
	WriteConverted(ctx context.Context, id, chunk string, start, end bool) (string, error)
}

// Config holds configuration for the engine.
type Config struct {
	// ChunkSize is the number of file bytes per chunk before encoding.
	ChunkSize int

	// Logger for transfer activity
	Logger *zap.Logger
}

// DefaultConfig returns the protocol defaults.
func DefaultConfig() *Config {
	return &Config{
		ChunkSize: DefaultChunkSize,
		Logger:    zap.NewNop(),
	}
}

// Stats describes a completed transfer.
type Stats struct {
	Chunks int
	Bytes  int64
}

// Engine runs the begin/chunk/end protocol. It is not safe for concurrent
// transfers of the same identifier; the store appends chunks in call order.
type Engine struct {
	w      Writer
	config *Config
}

// New creates an engine writing through w.
func New(w Writer, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &Engine{w: w, config: config}
}

// Upload transfers the file at path as the converted content of id.
//
// On success the record's status fields are untouched; marking the record
// converted is the caller's job.
func (e *Engine) Upload(ctx context.Context, id, path string) (*Stats, error) {
	log := e.config.Logger.With(zap.String("id", id), zap.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := e.call(ctx, id, "", true, false, PhaseBegin, 0); err != nil {
		return nil, err
	}
	log.Debug("transfer started")

	stats := &Stats{}
	buf := make([]byte, e.config.ChunkSize)
	for {
		n, readErr := io.ReadFull(f, buf)
		if n > 0 {
			chunk := base64.StdEncoding.EncodeToString(buf[:n])
			if err := e.call(ctx, id, chunk, false, false, PhaseChunk, stats.Chunks); err != nil {
				return stats, err
			}
			stats.Chunks++
			stats.Bytes += int64(n)
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return stats, fmt.Errorf("failed to read %s: %w", path, readErr)
		}
	}

	if err := e.call(ctx, id, "", false, true, PhaseEnd, 0); err != nil {
		return stats, err
	}

	log.Debug("transfer finished", zap.Int("chunks", stats.Chunks), zap.Int64("bytes", stats.Bytes))
	return stats, nil
}

func (e *Engine) call(ctx context.Context, id, chunk string, start, end bool, phase Phase, index int) error {
	resp, err := e.w.WriteConverted(ctx, id, chunk, start, end)
	if err != nil {
		return fmt.Errorf("%s failed: %w", phase, err)
	}
	if resp != store.ResponseOK {
		return &ProtocolError{Phase: phase, Chunk: index, Response: resp}
	}
	return nil
}
