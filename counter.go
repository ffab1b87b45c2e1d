package fbupload

import "io"

// counterReader is reader that counts bytes read from underlying reader, i.e. the current stream position
type counterReader struct {
	Rd        io.Reader
	BytesRead int64
}

func (c *counterReader) Read(p []byte) (n int, err error) {
	n, err = c.Rd.Read(p)
	c.BytesRead += int64(n)
	return n, err
}

// Seek moves the position if the underlying reader is an io.Seeker
func (c *counterReader) Seek(offset int64, whence int) (int64, error) {
	s, ok := c.Rd.(io.Seeker)
	if !ok {
		return c.BytesRead, errNotSeekable
	}
	pos, err := s.Seek(offset, whence)
	if err == nil {
		c.BytesRead = pos
	}
	return pos, err
}

func (c *counterReader) Seekable() bool {
	_, ok := c.Rd.(io.Seeker)
	return ok
}
