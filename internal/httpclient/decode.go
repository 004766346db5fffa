package httpclient

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// AcceptEncoding is set on requests whose responses go through DecodeBody.
const AcceptEncoding = "br, gzip"

// DecodeBody wraps resp.Body with the decoder the Content-Encoding header
// names. Identity and unknown encodings pass through. The returned reader
// must be closed; closing it closes the underlying body.
func DecodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		return readCloser{brotli.NewReader(resp.Body), resp.Body}, nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		return readCloser{zr, resp.Body}, nil
	default:
		return resp.Body, nil
	}
}

type readCloser struct {
	io.Reader
	underlying io.Closer
}

func (r readCloser) Close() error { return r.underlying.Close() }
