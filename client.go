package fbupload

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	DefaultGraphURL   = "https://graph-video.facebook.com"
	DefaultAPIVersion = "v18.0"
)

// NewGraphClient makes a GraphClient on top of a copy of client settings, so the client passed is left unchanged.
// If client is nil, a new one logging through go-utils logger is used
func NewGraphClient(client *retryablehttp.Client, baseURL *url.URL) *GraphClient {
	c := &GraphClient{BaseURL: baseURL}
	if client == nil {
		c.client = retryhttp.NewClient(log.NewLogger())
	} else {
		c.client = &retryablehttp.Client{
			HTTPClient:      client.HTTPClient,
			Logger:          client.Logger,
			RetryWaitMin:    client.RetryWaitMin,
			RetryWaitMax:    client.RetryWaitMax,
			RetryMax:        client.RetryMax,
			RequestLogHook:  client.RequestLogHook,
			ResponseLogHook: client.ResponseLogHook,
			CheckRetry:      client.CheckRetry,
			Backoff:         client.Backoff,
			PrepareRetry:    client.PrepareRetry,
		}
	}
	// Graph errors are in the body, so we want the last response back instead of a generic "giving up" error
	c.client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if baseURL == nil {
		c.BaseURL, _ = url.Parse(DefaultGraphURL)
	}
	c.GetRequest = newRequest
	return c
}

type GetRequestFunc func(ctx context.Context, method, url string, body []byte, graphClient *GraphClient) (*retryablehttp.Request, error)

// GraphClient is a Transport that talks to the Graph API over HTTP
type GraphClient struct {
	BaseURL *url.URL

	// AppSecret, if set, makes the client sign every request with appsecret_proof
	AppSecret string

	GetRequest GetRequestFunc

	client *retryablehttp.Client
}

func (c *GraphClient) Send(ctx context.Context, r *Request, out any) (err error) {
	if r == nil {
		panic("r is nil")
	}

	var body []byte
	var contentType string
	if body, contentType, err = c.encodeBody(r); err != nil {
		return
	}

	var req *retryablehttp.Request
	if req, err = c.GetRequest(ctx, r.Method, c.requestURL(r), body, c); err != nil {
		return
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(body))

	var response *http.Response
	if response, err = c.client.Do(req); err != nil {
		// PassthroughErrorHandler leaves the body open
		if response != nil {
			response.Body.Close()
		}
		return
	}
	defer response.Body.Close()

	var data []byte
	if data, err = io.ReadAll(response.Body); err != nil {
		return
	}
	if respErr := decodeResponseError(response.StatusCode, data); respErr != nil {
		return respErr
	}
	if response.StatusCode >= 300 {
		return &ResponseError{StatusCode: response.StatusCode, Message: http.StatusText(response.StatusCode)}
	}

	if out != nil {
		if err = json.Unmarshal(data, out); err != nil {
			err = fmt.Errorf("cannot decode response body: %s: %w", err, ErrProtocol)
		}
	}
	return
}

func (c *GraphClient) requestURL(r *Request) string {
	ver := r.APIVersion
	if ver == "" {
		ver = DefaultAPIVersion
	}
	u := *c.BaseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Trim(ver, "/") + "/" + strings.TrimLeft(r.Endpoint, "/")
	return u.String()
}

func (c *GraphClient) encodeBody(r *Request) (body []byte, contentType string, err error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	fields := make(map[string]string, len(r.Params)+2)
	for k, v := range r.Params {
		fields[k] = v
	}
	if r.AccessToken != "" {
		fields["access_token"] = r.AccessToken
		if c.AppSecret != "" {
			fields["appsecret_proof"] = AppSecretProof(r.AccessToken, c.AppSecret)
		}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err = w.WriteField(k, fields[k]); err != nil {
			return
		}
	}

	if r.File != nil {
		var fw io.Writer
		if fw, err = w.CreateFormFile(r.File.Field, r.File.FileName); err != nil {
			return
		}
		if _, err = fw.Write(r.File.Data); err != nil {
			return
		}
	}
	if err = w.Close(); err != nil {
		return
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// AppSecretProof returns the hex HMAC-SHA256 of the access token keyed with the app secret
func AppSecretProof(accessToken, appSecret string) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write([]byte(accessToken))
	return hex.EncodeToString(mac.Sum(nil))
}

type graphErrorBody struct {
	Error *struct {
		Message   string          `json:"message"`
		Type      string          `json:"type"`
		Code      int             `json:"code"`
		Subcode   int             `json:"error_subcode"`
		UserTitle string          `json:"error_user_title"`
		UserMsg   string          `json:"error_user_msg"`
		TraceID   string          `json:"fbtrace_id"`
		Data      json.RawMessage `json:"error_data"`
	} `json:"error"`
}

type resumeOffsets struct {
	StartOffset *graphOffset `json:"start_offset"`
	EndOffset   *graphOffset `json:"end_offset"`
}

// decodeResponseError returns nil if the body does not contain a Graph error object
func decodeResponseError(statusCode int, data []byte) *ResponseError {
	var b graphErrorBody
	if err := json.Unmarshal(data, &b); err != nil || b.Error == nil {
		return nil
	}
	e := &ResponseError{
		StatusCode: statusCode,
		Code:       b.Error.Code,
		Subcode:    b.Error.Subcode,
		Type:       b.Error.Type,
		Message:    b.Error.Message,
		UserTitle:  b.Error.UserTitle,
		UserMsg:    b.Error.UserMsg,
		TraceID:    b.Error.TraceID,
	}
	if !isResumableSubcode(e.Subcode) {
		return e
	}

	e.Resumable = &ResumableUploadError{Message: e.Message}
	var offs resumeOffsets
	// error_data is sometimes an object, sometimes a JSON-encoded string
	raw := b.Error.Data
	var s string
	if json.Unmarshal(raw, &s) == nil {
		raw = json.RawMessage(s)
	}
	if len(raw) > 0 && json.Unmarshal(raw, &offs) == nil {
		if offs.StartOffset != nil {
			v := int64(*offs.StartOffset)
			e.Resumable.StartOffset = &v
		}
		if offs.EndOffset != nil {
			v := int64(*offs.EndOffset)
			e.Resumable.EndOffset = &v
		}
	}
	return e
}

// graphOffset is a byte offset as the Graph API sends it: either a JSON number or a string with a number
type graphOffset int64

func (o *graphOffset) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("cannot parse offset %s: %w", b, ErrProtocol)
	}
	*o = graphOffset(v)
	return nil
}

func newRequest(ctx context.Context, method, url string, body []byte, _ *GraphClient) (*retryablehttp.Request, error) {
	return retryablehttp.NewRequestWithContext(ctx, method, url, body)
}
