package services

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/sigilum/chainrisk/internal/inference"
	"github.com/sigilum/chainrisk/internal/logging"
	"github.com/sigilum/chainrisk/internal/models"
)

var (
	// ErrChunkOutOfRange indicates a chunk id at or past the declared total.
	ErrChunkOutOfRange = errors.New("chunk id out of range")
	// ErrChunkTotalMismatch indicates a chunk declaring a different total
	// than the upload in progress.
	ErrChunkTotalMismatch = errors.New("chunk total does not match upload in progress")
	// ErrMetadataMissing indicates a completed upload with no metadata to
	// validate the artifact against.
	ErrMetadataMissing = errors.New("model metadata missing from upload")
)

type uploadPhase int

const (
	phaseEmpty uploadPhase = iota
	phaseAccumulating
	phaseLoaded
)

func (p uploadPhase) String() string {
	switch p {
	case phaseAccumulating:
		return "accumulating"
	case phaseLoaded:
		return "loaded"
	default:
		return "empty"
	}
}

type modelUpload struct {
	phase         uploadPhase
	expectedTotal int
	chunks        map[int][]byte
	metadataRaw   []byte
}

// AssembledModel is a completed upload: the concatenated artifact and its
// parsed metadata, ready to hand to an engine.
type AssembledModel struct {
	Chain    models.ChainType
	Bytes    []byte
	Metadata *models.ModelMetadata
}

// ModelStore accumulates model artifacts uploaded in chunks, one upload per
// chain. A rejected chunk never mutates the upload in progress, so a failed
// request can simply be retried.
type ModelStore struct {
	mu      sync.Mutex
	uploads map[models.ChainType]*modelUpload
	logger  *slog.Logger
}

func NewModelStore(logger logging.Logger) *ModelStore {
	return &ModelStore{
		uploads: make(map[models.ChainType]*modelUpload),
		logger:  logger.WithComponent("model_store"),
	}
}

// DecodeChunkData auto-detects the chunk encoding by content: hex first,
// then base64, then the literal bytes.
func DecodeChunkData(s string) []byte {
	if len(s) > 0 && len(s)%2 == 0 && isHexString(s) {
		if decoded, err := hex.DecodeString(s); err == nil {
			return decoded
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
		return decoded
	}
	return []byte(s)
}

func isHexString(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// AddChunk records one chunk of a chain's model upload. metadata may arrive
// with any chunk and the latest copy wins. When the final chunk lands the
// assembled artifact is returned and the accumulator is cleared; otherwise
// the return is nil.
func (s *ModelStore) AddChunk(chain models.ChainType, chunkID, totalChunks int, data []byte, metadata []byte) (*AssembledModel, error) {
	if totalChunks < 1 {
		return nil, fmt.Errorf("%w: total_chunks %d", ErrChunkOutOfRange, totalChunks)
	}
	if chunkID < 0 || chunkID >= totalChunks {
		return nil, fmt.Errorf("%w: chunk %d of %d", ErrChunkOutOfRange, chunkID, totalChunks)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	upload := s.uploads[chain]
	if upload == nil || upload.phase != phaseAccumulating {
		upload = &modelUpload{
			phase:         phaseAccumulating,
			expectedTotal: totalChunks,
			chunks:        make(map[int][]byte),
		}
		s.uploads[chain] = upload
	}
	if totalChunks != upload.expectedTotal {
		return nil, fmt.Errorf("%w: got %d, upload expects %d", ErrChunkTotalMismatch, totalChunks, upload.expectedTotal)
	}

	upload.chunks[chunkID] = data
	if len(metadata) > 0 {
		upload.metadataRaw = metadata
	}

	if len(upload.chunks) < upload.expectedTotal {
		s.logger.Debug("chunk stored",
			"chain", string(chain), "chunk_id", chunkID,
			"received", len(upload.chunks), "total", upload.expectedTotal)
		return nil, nil
	}

	if len(upload.metadataRaw) == 0 {
		return nil, ErrMetadataMissing
	}
	meta, err := inference.ParseMetadata(upload.metadataRaw)
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(upload.chunks))
	total := 0
	for id, chunk := range upload.chunks {
		ids = append(ids, id)
		total += len(chunk)
	}
	sort.Ints(ids)
	assembled := make([]byte, 0, total)
	for _, id := range ids {
		assembled = append(assembled, upload.chunks[id]...)
	}

	s.uploads[chain] = &modelUpload{phase: phaseLoaded}
	s.logger.Info("model upload assembled",
		"chain", string(chain), "chunks", len(ids), "artifact_bytes", len(assembled))

	return &AssembledModel{Chain: chain, Bytes: assembled, Metadata: meta}, nil
}

// Reset clears a chain's upload, e.g. after the engine rejected the
// assembled artifact.
func (s *ModelStore) Reset(chain models.ChainType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.uploads, chain)
}

// Phase reports the upload state for a chain.
func (s *ModelStore) Phase(chain models.ChainType) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if upload := s.uploads[chain]; upload != nil {
		return upload.phase.String()
	}
	return phaseEmpty.String()
}
