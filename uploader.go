package fbupload

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// DefaultMaxTransferTries is how many times a chunk is retried when maxTries is not set
const DefaultMaxTransferTries = 5

// Progress describes a single transfer step
type Progress struct {
	// Chunk is the chunk that was sent
	Chunk *Chunk
	// Next is the chunk to be sent next, it is the same pointer as Chunk for OutcomeRetry
	Next    *Chunk
	Outcome Outcome
	// TriesLeft is the retry counter after the step
	TriesLeft int
}

type ProgressFunc func(p Progress)

// Result is the result of a video upload
type Result struct {
	VideoID string `json:"video_id"`
	Success bool   `json:"success"`
}

func (r Result) Map() map[string]any {
	return map[string]any{"video_id": r.VideoID, "success": r.Success}
}

func NewUploader(session *Session, logger log.Logger) *Uploader {
	if session == nil {
		panic("session is nil")
	}
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Uploader{
		Session:          session,
		MaxTransferTries: DefaultMaxTransferTries,
		logger:           logger,
	}
}

// Uploader drives the upload session: starts it, transfers chunks retrying the transient failures,
// and finishes it.
type Uploader struct {
	Session *Session

	// MaxTransferTries is used when maxTries passed to Upload is not positive
	MaxTransferTries int

	// HTTPClient is set to the sources made by VideoToUpload
	HTTPClient *http.Client

	// OnProgress, if set, is called after every transfer step
	OnProgress ProgressFunc

	logger log.Logger
}

// VideoToUpload makes a Source for the given local path or URL
func (u *Uploader) VideoToUpload(path string) *Source {
	return NewSource(path, u.HTTPClient)
}

// UploadVideo uploads a file to the target's videos edge, e.g. "/me/videos"
func (u *Uploader) UploadVideo(ctx context.Context, target, path string, metadata map[string]string, maxTries int) (*Result, error) {
	return u.Upload(ctx, target, u.VideoToUpload(path), metadata, maxTries)
}

// Upload transfers src to the target's videos edge chunk by chunk and finishes the session with metadata.
//
// A chunk which transfer has failed transiently is retried up to maxTries times, the counter is reset every
// time the server makes progress. After the tries are exhausted, the next failure is returned as error.
// The src is closed when Upload returns.
//
// If the file is transferred, but the session finishing has failed, the returned Result contains the
// video id along with the error which wraps ErrSessionFinish.
func (u *Uploader) Upload(ctx context.Context, target string, src *Source, metadata map[string]string, maxTries int) (res *Result, err error) {
	if src == nil {
		panic("src is nil")
	}
	defer src.Close()

	endpoint := VideosEndpoint(target)
	if maxTries <= 0 {
		maxTries = u.MaxTransferTries
	}
	if maxTries <= 0 {
		maxTries = DefaultMaxTransferTries
	}

	if err = src.Open(ctx); err != nil {
		return
	}
	var size int64
	if size, err = src.Size(ctx); err != nil {
		return
	}

	var chunk *Chunk
	if chunk, err = u.Session.Start(ctx, endpoint, src); err != nil {
		return
	}
	u.logger.Debugf("Upload session %s started for %s (%s), video id %s",
		chunk.UploadSessionID(), src.Path, units.HumanSizeWithPrecision(float64(size), 3), chunk.VideoID())

	if chunk, err = u.transferAll(ctx, endpoint, chunk, maxTries); err != nil {
		return
	}
	if e := src.Close(); e != nil {
		u.logger.Warnf("Failed to close %s: %s", src.Path, e)
	}

	res = &Result{VideoID: chunk.VideoID()}
	if res.Success, err = u.Session.Finish(ctx, endpoint, chunk.UploadSessionID(), metadata); err != nil {
		return
	}
	u.logger.Donef("Uploaded %s, video id %s, success: %t", src.Path, res.VideoID, res.Success)
	return
}

func (u *Uploader) transferAll(ctx context.Context, endpoint string, chunk *Chunk, maxTries int) (*Chunk, error) {
	triesLeft := maxTries

	for !chunk.Done() {
		select {
		case <-ctx.Done():
			return chunk, ctx.Err()
		default:
		}

		res, err := u.Session.Transfer(ctx, endpoint, chunk, triesLeft < 1)
		if err != nil {
			return chunk, err
		}

		switch res.Outcome {
		case OutcomeRetry:
			triesLeft--
			u.logger.Warnf("Transfer of %s failed, %d tries left", chunk, triesLeft)
		case OutcomeResumed:
			triesLeft = maxTries
			u.logger.Warnf("Transfer of %s failed, server resumes from [%d, %d)", chunk, res.Chunk.StartOffset(), res.Chunk.EndOffset())
		default:
			triesLeft = maxTries
			u.logger.Debugf("Transferred %s", chunk)
		}

		if u.OnProgress != nil {
			u.OnProgress(Progress{Chunk: chunk, Next: res.Chunk, Outcome: res.Outcome, TriesLeft: triesLeft})
		}
		chunk = res.Chunk
	}
	return chunk, nil
}

// VideosEndpoint returns the videos edge of the target node
func VideosEndpoint(target string) string {
	return fmt.Sprintf("/%s/videos", strings.Trim(target, "/"))
}
