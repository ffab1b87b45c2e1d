package fbupload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
)

// Outcome tells what Session.Transfer has done with a chunk
type Outcome int

const (
	// OutcomeAdvanced means the chunk was accepted and the server proposed the next window
	OutcomeAdvanced Outcome = iota
	// OutcomeResumed means the transfer failed, but the server told which window it expects instead
	OutcomeResumed
	// OutcomeRetry means the transfer failed transiently, the same chunk must be sent again
	OutcomeRetry
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeResumed:
		return "resumed"
	case OutcomeRetry:
		return "retry"
	default:
		return "Outcome(" + strconv.Itoa(int(o)) + ")"
	}
}

type TransferResult struct {
	Outcome Outcome
	// Chunk is the chunk to be transferred next. For OutcomeRetry it is the chunk passed to Transfer
	Chunk *Chunk
}

const videoChunkField = "video_file_chunk"

func NewSession(transport Transport, accessToken, apiVersion string) *Session {
	if transport == nil {
		panic("transport is nil")
	}
	return &Session{
		Transport:   transport,
		AccessToken: accessToken,
		APIVersion:  apiVersion,
	}
}

// Session implements the three phases of the resumable upload protocol: start, transfer and finish.
// Session keeps no upload progress, all of it is in Chunk values passed between calls, so the same
// Session may drive several uploads concurrently.
type Session struct {
	Transport   Transport
	AccessToken string
	APIVersion  string

	// ChunkSize, if positive, overrides the chunk boundaries proposed by server on start and after a
	// successful transfer
	ChunkSize int64
}

type startResponse struct {
	UploadSessionID string       `json:"upload_session_id"`
	VideoID         string       `json:"video_id"`
	StartOffset     *graphOffset `json:"start_offset"`
	EndOffset       *graphOffset `json:"end_offset"`
}

type transferResponse struct {
	StartOffset *graphOffset `json:"start_offset"`
	EndOffset   *graphOffset `json:"end_offset"`
}

type finishResponse struct {
	Success bool `json:"success"`
}

// Start opens an upload session and returns the first chunk to transfer
func (s *Session) Start(ctx context.Context, endpoint string, src *Source) (chunk *Chunk, err error) {
	var size int64
	if size, err = src.Size(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionStart, err)
	}

	params := map[string]string{
		"upload_phase": "start",
		"file_size":    strconv.FormatInt(size, 10),
	}
	var resp startResponse
	if err = s.send(ctx, endpoint, params, nil, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionStart, err)
	}
	if resp.UploadSessionID == "" || resp.StartOffset == nil || resp.EndOffset == nil {
		return nil, fmt.Errorf("%w: start response lacks session id or offsets: %w", ErrSessionStart, ErrProtocol)
	}

	start, end := int64(*resp.StartOffset), int64(*resp.EndOffset)
	if s.ChunkSize > 0 {
		end = start + s.ChunkSize
	}
	if chunk, err = newChunk(src, resp.UploadSessionID, resp.VideoID, start, end); err != nil {
		err = fmt.Errorf("%w: %w", ErrSessionStart, err)
	}
	return
}

// Transfer sends the chunk bytes to server. See Outcome for possible results.
//
// If the server returns a resumable upload error without offsets, the same chunk is returned with
// OutcomeRetry, unless allowFatal is set; then the error is returned. Other errors are always returned.
func (s *Session) Transfer(ctx context.Context, endpoint string, chunk *Chunk, allowFatal bool) (res TransferResult, err error) {
	if chunk == nil {
		panic("chunk is nil")
	}

	view := chunk.PartialView()
	var data []byte
	if data, err = view.Bytes(ctx); err != nil {
		return res, fmt.Errorf("%w: %s: %w", ErrTransfer, chunk, err)
	}

	params := map[string]string{
		"upload_phase":      "transfer",
		"upload_session_id": chunk.UploadSessionID(),
		"start_offset":      strconv.FormatInt(chunk.StartOffset(), 10),
	}
	file := &FilePart{Field: videoChunkField, FileName: path.Base(chunk.Source().Path), Data: data}

	var resp transferResponse
	if err = s.send(ctx, endpoint, params, file, &resp); err != nil {
		var respErr *ResponseError
		if !errors.As(err, &respErr) || respErr.Resumable == nil {
			return res, fmt.Errorf("%w: %s: %w", ErrTransfer, chunk, err)
		}
		if offs, ok := respErr.Resumable.Offsets(); ok {
			var next *Chunk
			if next, err = s.nextChunk(chunk, offs[0], offs[1], false); err != nil {
				return
			}
			return TransferResult{Outcome: OutcomeResumed, Chunk: next}, nil
		}
		if allowFatal {
			return res, fmt.Errorf("%w: %s: %w", ErrTransfer, chunk, err)
		}
		return TransferResult{Outcome: OutcomeRetry, Chunk: chunk}, nil
	}
	if resp.StartOffset == nil || resp.EndOffset == nil {
		return res, fmt.Errorf("%w: %s: transfer response lacks offsets: %w", ErrTransfer, chunk, ErrProtocol)
	}

	var next *Chunk
	if next, err = s.nextChunk(chunk, int64(*resp.StartOffset), int64(*resp.EndOffset), true); err != nil {
		return
	}
	return TransferResult{Outcome: OutcomeAdvanced, Chunk: next}, nil
}

// Finish closes the upload session, passing the video metadata, e.g. title and description.
// Returns the success flag sent by server.
func (s *Session) Finish(ctx context.Context, endpoint, uploadSessionID string, metadata map[string]string) (success bool, err error) {
	params := make(map[string]string, len(metadata)+2)
	for k, v := range metadata {
		params[k] = v
	}
	params["upload_phase"] = "finish"
	params["upload_session_id"] = uploadSessionID

	var resp finishResponse
	if err = s.send(ctx, endpoint, params, nil, &resp); err != nil {
		return false, fmt.Errorf("%w: %w", ErrSessionFinish, err)
	}
	return resp.Success, nil
}

// nextChunk makes the chunk following prev. If sized is set, the client chunk size wins over the end offset
// proposed by server unless the server has sent an empty window, which means the upload is complete.
// A resume window reported in an error is taken as is.
func (s *Session) nextChunk(prev *Chunk, start, end int64, sized bool) (*Chunk, error) {
	if sized && s.ChunkSize > 0 && start != end {
		end = start + s.ChunkSize
	}
	next, err := newChunk(prev.Source(), prev.UploadSessionID(), prev.VideoID(), start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransfer, prev, err)
	}
	return next, nil
}

func (s *Session) send(ctx context.Context, endpoint string, params map[string]string, file *FilePart, out any) error {
	return s.Transport.Send(ctx, &Request{
		Method:      http.MethodPost,
		Endpoint:    endpoint,
		Params:      params,
		File:        file,
		AccessToken: s.AccessToken,
		APIVersion:  s.APIVersion,
	}, out)
}
