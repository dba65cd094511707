package runtime

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MaxBodySize is the maximum size of a request body.
const MaxBodySize = 1 << 20

var ErrBodyTooLarge = errors.New("request body too large")

// Request is a transport independent request to the handler.
type Request struct {
	Path   string
	Method string
	Body   []byte
	Header http.Header
}

// Response is a transport independent response of the handler.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// ReadRequest reads r into a Request. Bodies larger than
// MaxBodySize are rejected with ErrBodyTooLarge.
func ReadRequest(r *http.Request) (Request, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodySize+1))
	if err != nil {
		return Request{}, fmt.Errorf("failed to read body: %w", err)
	}

	if len(body) > MaxBodySize {
		return Request{}, ErrBodyTooLarge
	}

	return Request{
		Path:   r.URL.Path,
		Method: strings.ToUpper(r.Method),
		Header: r.Header,
		Body:   body,
	}, nil
}

// Write writes the headers, status code and body of the response to w.
func (resp Response) Write(w http.ResponseWriter) error {
	for k, v := range resp.Header {
		for _, vv := range v {
			w.Header().Add(k, vv)
		}
	}

	w.WriteHeader(resp.StatusCode)

	_, err := w.Write(resp.Body)

	return err
}
