package fbupload

import (
	"context"
	"fmt"
)

// Chunk is one step of an upload session: a window [StartOffset, EndOffset) of the source the server
// expects next. Chunks are never modified; every transfer produces a new one.
type Chunk struct {
	source          *Source
	uploadSessionID string
	videoID         string
	startOffset     int64
	endOffset       int64
}

// newChunk makes a chunk, clamping the end offset to the source size if it is known
func newChunk(src *Source, uploadSessionID, videoID string, startOffset, endOffset int64) (*Chunk, error) {
	if startOffset < 0 || endOffset < startOffset {
		return nil, fmt.Errorf("bad chunk offsets [%d, %d): %w", startOffset, endOffset, ErrProtocol)
	}
	if size, ok := src.KnownSize(); ok {
		if startOffset > size {
			return nil, fmt.Errorf("chunk start offset %d exceeds the file size %d: %w", startOffset, size, ErrProtocol)
		}
		if endOffset > size {
			endOffset = size
		}
	}
	return &Chunk{
		source:          src,
		uploadSessionID: uploadSessionID,
		videoID:         videoID,
		startOffset:     startOffset,
		endOffset:       endOffset,
	}, nil
}

func (c *Chunk) Source() *Source {
	return c.source
}

func (c *Chunk) UploadSessionID() string {
	return c.uploadSessionID
}

func (c *Chunk) VideoID() string {
	return c.videoID
}

func (c *Chunk) StartOffset() int64 {
	return c.startOffset
}

func (c *Chunk) EndOffset() int64 {
	return c.endOffset
}

func (c *Chunk) Len() int64 {
	return c.endOffset - c.startOffset
}

// IsLast reports whether the chunk reaches the end of file. If the size is unknown, the chunk
// is the last when the server has signalled completion by sending an empty window.
func (c *Chunk) IsLast() bool {
	if size, ok := c.source.KnownSize(); ok {
		return c.endOffset == size
	}
	return c.startOffset == c.endOffset
}

// Done reports whether the server has received the whole file, so there is nothing left to transfer
func (c *Chunk) Done() bool {
	return c.startOffset >= c.endOffset
}

// PartialView returns the chunk's bytes as a view on the source. Nothing is read until Bytes is called.
func (c *Chunk) PartialView() *ChunkView {
	return &ChunkView{source: c.source, offset: c.startOffset, length: c.Len()}
}

func (c *Chunk) String() string {
	return fmt.Sprintf("chunk [%d, %d) of session %s", c.startOffset, c.endOffset, c.uploadSessionID)
}

// ChunkView is a read-only projection of a source byte range. It shares the source stream.
type ChunkView struct {
	source *Source
	offset int64
	length int64
}

func (v *ChunkView) Offset() int64 {
	return v.offset
}

func (v *ChunkView) Len() int64 {
	return v.length
}

func (v *ChunkView) Bytes(ctx context.Context) ([]byte, error) {
	return v.source.ReadRange(ctx, v.length, v.offset)
}
