package fbupload

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// RemoteSizer finds out the byte length of a remote file without downloading it
type RemoteSizer struct {
	Client *http.Client
}

// Size returns the remote file size. First, it looks at Content-Length of a HEAD response. If the server
// does not report it, Size requests the first byte only and takes the total from Content-Range. If both
// fail, the error is ErrSizeUnknown, so a zero-length file is never confused with an unknown size.
func (p RemoteSizer) Size(ctx context.Context, uri string) (size int64, err error) {
	var ok bool
	if size, ok, err = p.byHead(ctx, uri); err != nil || ok {
		return
	}
	if size, ok, err = p.byRange(ctx, uri); err != nil || ok {
		return
	}
	return 0, fmt.Errorf("%s: %w", uri, ErrSizeUnknown)
}

func (p RemoteSizer) byHead(ctx context.Context, uri string) (size int64, ok bool, err error) {
	var response *http.Response
	if response, err = p.do(ctx, http.MethodHead, uri, nil); err != nil {
		return
	}
	defer response.Body.Close()

	if response.StatusCode >= 300 {
		// Some servers do not allow HEAD, let the fallback decide
		return
	}
	if response.ContentLength < 0 {
		return
	}
	return response.ContentLength, true, nil
}

func (p RemoteSizer) byRange(ctx context.Context, uri string) (size int64, ok bool, err error) {
	var response *http.Response
	if response, err = p.do(ctx, http.MethodGet, uri, map[string]string{"Range": "bytes=0-0"}); err != nil {
		return
	}
	defer response.Body.Close()

	switch response.StatusCode {
	case http.StatusPartialContent:
		// Content-Range: bytes 0-0/12345
		v := response.Header.Get("Content-Range")
		idx := strings.LastIndexByte(v, '/')
		if idx < 0 || v[idx+1:] == "*" {
			return
		}
		if size, err = strconv.ParseInt(v[idx+1:], 10, 64); err != nil || size < 0 {
			return 0, false, nil
		}
		return size, true, nil
	case http.StatusOK:
		// Range is ignored by server, the whole body is coming. Don't download it
		if response.ContentLength >= 0 {
			return response.ContentLength, true, nil
		}
	case http.StatusRequestedRangeNotSatisfiable:
		// Range is not satisfiable for an empty file only
		if v := response.Header.Get("Content-Range"); strings.HasSuffix(v, "/0") {
			return 0, true, nil
		}
	default:
		err = fmt.Errorf("server returned HTTP %d code: %w", response.StatusCode, ErrUnreadableSource)
	}
	return
}

func (p RemoteSizer) do(ctx context.Context, method, uri string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", uri, err, ErrUnreadableSource)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	cl := p.Client
	if cl == nil {
		cl = http.DefaultClient
	}
	response, err := cl.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", uri, err, ErrUnreadableSource)
	}
	return response, nil
}
