package fbupload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
)

var remotePathRe = regexp.MustCompile(`^(https?|ftp)://.*`)

var errNotSeekable = errors.New("stream is not seekable")

// Source is a file to be uploaded, either local or remote. The stream is opened lazily on the first
// read and then reused for every chunk, because reopening a remote file means downloading it again
// from the start.
//
// Source is owned by a single upload and is not safe for concurrent use.
type Source struct {
	Path string

	// HTTPClient is used to look up the size of and download remote files. http.DefaultClient if nil
	HTTPClient *http.Client

	stream    io.ReadCloser
	position  *counterReader
	size      int64
	sizeKnown bool
	closed    bool

	// The most recently read window, so that a retried chunk can be read again from a non-seekable stream
	lastOffset int64
	lastData   []byte
}

func NewSource(path string, httpClient *http.Client) *Source {
	return &Source{Path: path, HTTPClient: httpClient}
}

// NewSourceFromStream makes a Source on top of an already opened stream. Open will reuse the stream.
// Pass a negative size if it is not known, then local size discovery takes place on the first Size call.
func NewSourceFromStream(path string, stream io.ReadCloser, size int64) *Source {
	s := &Source{Path: path}
	s.setStream(stream)
	if size >= 0 {
		s.size, s.sizeKnown = size, true
	}
	return s
}

func (s *Source) IsRemote() bool {
	return remotePathRe.MatchString(s.Path)
}

// Open opens the stream if it was not opened yet
func (s *Source) Open(ctx context.Context) (err error) {
	if s.closed {
		return fmt.Errorf("%s: source is closed: %w", s.Path, ErrUnreadableSource)
	}
	if s.stream != nil {
		return
	}

	var stream io.ReadCloser
	if s.IsRemote() {
		stream, err = s.openRemote(ctx)
	} else {
		stream, err = s.openLocal()
	}
	if err != nil {
		return
	}
	s.setStream(stream)
	return
}

// Size returns the total size of the file. The size is resolved once and never looked up again.
func (s *Source) Size(ctx context.Context) (int64, error) {
	if s.sizeKnown {
		return s.size, nil
	}

	var size int64
	if s.IsRemote() {
		var err error
		if size, err = (RemoteSizer{Client: s.httpClient()}).Size(ctx, s.Path); err != nil {
			return 0, err
		}
	} else {
		finfo, err := os.Stat(s.Path)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", err, ErrUnreadableSource)
		}
		if !finfo.Mode().IsRegular() {
			return 0, fmt.Errorf("%s is not a regular file: %w", s.Path, ErrUnreadableSource)
		}
		size = finfo.Size()
	}

	s.size, s.sizeKnown = size, true
	return size, nil
}

// KnownSize returns the size if it has been resolved already
func (s *Source) KnownSize() (int64, bool) {
	return s.size, s.sizeKnown
}

// ReadRange reads up to maxLength bytes starting from offset. If size is known, the length is clamped
// so that reading never goes past the end of file. Negative offset means reading from the current position.
func (s *Source) ReadRange(ctx context.Context, maxLength, offset int64) (data []byte, err error) {
	if err = s.Open(ctx); err != nil {
		return
	}
	if maxLength < 0 {
		return nil, fmt.Errorf("negative length %d: %w", maxLength, ErrSourceRead)
	}
	if offset < 0 {
		offset = s.position.BytesRead
	}
	if s.sizeKnown && maxLength > s.size-offset {
		maxLength = max(s.size-offset, 0)
	}

	if buffered, ok := s.fromLastRead(maxLength, offset); ok {
		return buffered, nil
	}
	if err = s.moveTo(ctx, offset); err != nil {
		return
	}

	// maxLength is an upper bound only, so the buffer grows with the data actually read
	if data, err = io.ReadAll(io.LimitReader(s.position, maxLength)); err != nil {
		return nil, fmt.Errorf("%s: read %d bytes at %d: %s: %w", s.Path, maxLength, offset, err, ErrSourceRead)
	}

	if !s.position.Seekable() {
		s.lastOffset, s.lastData = offset, data
	}
	return
}

// Close closes the stream. It's safe to call it several times
func (s *Source) Close() (err error) {
	if s.closed {
		return
	}
	s.closed = true
	s.lastData = nil
	if s.stream != nil {
		err = s.stream.Close()
	}
	return
}

func (s *Source) setStream(stream io.ReadCloser) {
	s.stream = stream
	s.position = &counterReader{Rd: stream}
	if sk, ok := stream.(io.Seeker); ok {
		if pos, err := sk.Seek(0, io.SeekCurrent); err == nil {
			s.position.BytesRead = pos
		}
	}
}

func (s *Source) fromLastRead(length, offset int64) ([]byte, bool) {
	if s.lastData == nil || offset < s.lastOffset || length > s.lastOffset+int64(len(s.lastData))-offset {
		return nil, false
	}
	start := offset - s.lastOffset
	res := make([]byte, length)
	copy(res, s.lastData[start:start+length])
	return res, true
}

// moveTo sets the stream position to offset. Non-seekable streams can move forward only
func (s *Source) moveTo(ctx context.Context, offset int64) error {
	pos := s.position.BytesRead
	switch {
	case pos == offset:
		return nil
	case s.position.Seekable():
		if _, err := s.position.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("%s: seek to %d: %s: %w", s.Path, offset, err, ErrSourceRead)
		}
		return nil
	case offset > pos:
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := io.CopyN(io.Discard, s.position, offset-pos); err != nil {
			return fmt.Errorf("%s: skip to %d: %s: %w", s.Path, offset, err, ErrSourceRead)
		}
		return nil
	default:
		return fmt.Errorf("%s: cannot rewind from %d to %d: %w: %w", s.Path, pos, offset, errNotSeekable, ErrSourceRead)
	}
}

func (s *Source) openLocal() (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err, ErrUnreadableSource)
	}
	return f, nil
}

func (s *Source) openRemote(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", s.Path, err, ErrUnreadableSource)
	}
	response, err := s.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", s.Path, err, ErrUnreadableSource)
	}
	if response.StatusCode >= 300 {
		response.Body.Close()
		return nil, fmt.Errorf("%s: server returned HTTP %d code: %w", s.Path, response.StatusCode, ErrUnreadableSource)
	}
	return response.Body, nil
}

func (s *Source) httpClient() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return http.DefaultClient
}
