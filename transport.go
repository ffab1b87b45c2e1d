package fbupload

import "context"

// Transport sends a request to the remote endpoint and decodes the response body into out.
//
// Errors reported by the remote must be returned as *ResponseError, so that the resumable
// upload errors can be told apart from the rest.
type Transport interface {
	Send(ctx context.Context, req *Request, out any) error
}

type Request struct {
	Method      string
	Endpoint    string
	Params      map[string]string
	File        *FilePart
	AccessToken string
	APIVersion  string
}

// FilePart is a file attached to a request as a multipart form field
type FilePart struct {
	Field    string
	FileName string
	Data     []byte
}
