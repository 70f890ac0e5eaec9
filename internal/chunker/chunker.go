package chunker

import (
	"strings"

	"github.com/repochat/repochat/pkg/types"
)

// DefaultMaxChunkBytes bounds chunk content size. Roughly 1000 tokens at the
// usual 4 bytes per token.
const DefaultMaxChunkBytes = 4096

// Chunker splits file content into chunks of at most maxBytes each.
type Chunker struct {
	maxBytes int
}

// New creates a Chunker with the given size budget. Non-positive values fall
// back to DefaultMaxChunkBytes.
func New(maxBytes int) *Chunker {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxChunkBytes
	}
	return &Chunker{maxBytes: maxBytes}
}

// ChunkFile splits content into chunks for filePath, assigning sequence
// numbers starting at startSeq. Returns the chunks and the next free
// sequence number.
func (c *Chunker) ChunkFile(codebaseID, filePath, content string, startSeq int) ([]types.Chunk, int) {
	if strings.TrimSpace(content) == "" {
		return nil, startSeq
	}

	lines := strings.Split(content, "\n")
	// A trailing newline yields a phantom empty last line; drop it so line
	// spans match the file's real line count.
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	seq := startSeq
	var chunks []types.Chunk

	var buf []string
	bufBytes := 0
	bufStart := 1 // 1-based line number of the first buffered line

	flush := func(endLine int) {
		if len(buf) == 0 {
			return
		}
		joined := strings.Join(buf, "\n")
		// Whitespace-only runs carry no indexable content and never
		// become chunks.
		if strings.TrimSpace(joined) == "" {
			buf = buf[:0]
			bufBytes = 0
			return
		}
		chunk := types.Chunk{
			CodebaseID: codebaseID,
			Seq:        seq,
			FilePath:   filePath,
			StartLine:  bufStart,
			EndLine:    endLine,
			Content:    joined,
		}
		chunk.ComputeContentHash()
		chunks = append(chunks, chunk)
		seq++
		buf = buf[:0]
		bufBytes = 0
	}

	for i, line := range lines {
		lineNo := i + 1

		// Oversized single lines become chunks of their own, hard-split at
		// the byte budget.
		if len(line) > c.maxBytes {
			flush(lineNo - 1)
			bufStart = lineNo
			for _, part := range splitOversized(line, c.maxBytes) {
				chunk := types.Chunk{
					CodebaseID: codebaseID,
					Seq:        seq,
					FilePath:   filePath,
					StartLine:  lineNo,
					EndLine:    lineNo,
					Content:    part,
				}
				chunk.ComputeContentHash()
				chunks = append(chunks, chunk)
				seq++
			}
			bufStart = lineNo + 1
			continue
		}

		// +1 for the joining newline.
		if bufBytes > 0 && bufBytes+1+len(line) > c.maxBytes {
			flush(lineNo - 1)
			bufStart = lineNo
		}
		if len(buf) == 0 {
			bufStart = lineNo
		}
		buf = append(buf, line)
		bufBytes += len(line)
		if len(buf) > 1 {
			bufBytes++ // newline
		}
	}
	flush(len(lines))
	return chunks, seq
}

func splitOversized(line string, maxBytes int) []string {
	var parts []string
	for len(line) > maxBytes {
		parts = append(parts, line[:maxBytes])
		line = line[maxBytes:]
	}
	if line != "" {
		parts = append(parts, line)
	}
	return parts
}
