package types

import (
	"crypto/sha256"
	"errors"
)

// Chunk is a bounded span of source text, the unit of retrieval. Identity is
// (CodebaseID, Seq); Seq is assigned in file-then-line order by the chunker
// and is stable for identical input.
type Chunk struct {
	CodebaseID string
	Seq        int

	FilePath  string
	StartLine int
	EndLine   int
	Content   string

	ContentHash [32]byte
}

// ComputeContentHash fills in the SHA-256 hash of the chunk content.
func (c *Chunk) ComputeContentHash() {
	c.ContentHash = sha256.Sum256([]byte(c.Content))
}

// Validate performs basic integrity checks on the chunk.
func (c *Chunk) Validate() error {
	if c.CodebaseID == "" {
		return errors.New("chunk codebase id is required")
	}
	if c.Content == "" {
		return errors.New("chunk content cannot be empty")
	}
	if c.FilePath == "" {
		return errors.New("chunk file path is required")
	}
	if c.StartLine <= 0 || c.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}
	if c.StartLine > c.EndLine {
		return errors.New("start line must be before or equal to end line")
	}
	return nil
}
