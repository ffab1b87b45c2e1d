package fbupload

import (
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fakeGraph is an in-memory Transport that behaves like the resumable upload endpoint
type fakeGraph struct {
	sessionID   string
	videoID     string
	serverChunk int64

	fileSize      int64
	received      []byte
	transferCalls int
	requests      []*Request
	finishParams  map[string]string

	startErr     error
	finishErr    error
	failTransfer func(call int) error
}

func newFakeGraph(serverChunk int64) *fakeGraph {
	return &fakeGraph{sessionID: "session-1", videoID: "video-1", serverChunk: serverChunk}
}

func (g *fakeGraph) Send(_ context.Context, req *Request, out any) error {
	g.requests = append(g.requests, req)
	switch req.Params["upload_phase"] {
	case "start":
		if g.startErr != nil {
			return g.startErr
		}
		size, err := strconv.ParseInt(req.Params["file_size"], 10, 64)
		Ω(err).Should(Succeed())
		g.fileSize = size
		return respond(out, map[string]any{
			"upload_session_id": g.sessionID,
			"video_id":          g.videoID,
			"start_offset":      "0",
			"end_offset":        strconv.FormatInt(g.proposeEnd(0), 10),
		})
	case "transfer":
		g.transferCalls++
		if g.failTransfer != nil {
			if err := g.failTransfer(g.transferCalls); err != nil {
				return err
			}
		}
		Ω(req.Params["upload_session_id"]).Should(Equal(g.sessionID))
		start, err := strconv.ParseInt(req.Params["start_offset"], 10, 64)
		Ω(err).Should(Succeed())
		if have := int64(len(g.received)); start != have {
			return resumeError(have, g.proposeEnd(have))
		}
		g.received = append(g.received, req.File.Data...)
		next := int64(len(g.received))
		return respond(out, map[string]any{"start_offset": next, "end_offset": g.proposeEnd(next)})
	case "finish":
		g.finishParams = req.Params
		if g.finishErr != nil {
			return g.finishErr
		}
		return respond(out, map[string]any{"success": true})
	}
	Fail("unknown upload phase " + req.Params["upload_phase"])
	return nil
}

func (g *fakeGraph) proposeEnd(start int64) int64 {
	end := start + g.serverChunk
	if end > g.fileSize {
		end = g.fileSize
	}
	return end
}

type transportFunc func(ctx context.Context, req *Request, out any) error

func (f transportFunc) Send(ctx context.Context, req *Request, out any) error {
	return f(ctx, req, out)
}

func respond(out any, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func transientError() *ResponseError {
	return &ResponseError{
		StatusCode: 400,
		Code:       6001,
		Subcode:    1363030,
		Message:    "Your video upload timed out before it could be completed",
		Resumable:  &ResumableUploadError{Message: "Your video upload timed out before it could be completed"},
	}
}

func resumeError(start, end int64) *ResponseError {
	e := transientError()
	e.Subcode = 1363037
	e.Message = "Partial upload"
	e.Resumable = &ResumableUploadError{Message: e.Message, StartOffset: &start, EndOffset: &end}
	return e
}

func randomData(n int) []byte {
	data := make([]byte, n)
	rand.New(rand.NewSource(time.Now().UnixNano())).Read(data)
	return data
}

// mockBodyData returns random data without line breaks, since mocha writes reply bodies line by line and drops them
func mockBodyData(n int) []byte {
	data := randomData(n)
	for i, b := range data {
		if b == '\n' || b == '\r' {
			data[i] = ' '
		}
	}
	return data
}

func tempFile(data []byte) string {
	p := filepath.Join(GinkgoT().TempDir(), "video.mp4")
	Ω(os.WriteFile(p, data, 0o600)).Should(Succeed())
	return p
}
