package model

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var ErrMalformed = errors.New("malformed message")

type Request struct {
	Method  string
	URI     string
	Version string
	Headers map[string]string
}

type Response struct {
	Status        int
	ContentType   string
	ContentLength int64
	Headers       map[string]string
}

// Parse a request line such as "GET /index.html HTTP/1.1".
func ParseRequestLine(line string) (*Request, error) {
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return nil, errors.Wrapf(ErrMalformed, "request line %q", line)
	}
	return &Request{
		Method:  parts[0],
		URI:     parts[1],
		Version: parts[2],
		Headers: map[string]string{},
	}, nil
}

// Write a Request.
func (r *Request) Write(writer io.Writer) (err error) {
	// Request line, then "Key: Value" headers, then an empty line.
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\r\n", r.Method, r.URI, r.Version)
	for _, key := range sortedKeys(r.Headers) {
		fmt.Fprintf(&b, "%s: %s\r\n", key, r.Headers[key])
	}
	b.WriteString("\r\n")

	_, err = io.WriteString(writer, b.String())
	return
}

// Read "Key: Value" lines up to and including the empty line that ends them.
//
// Keys are lower-cased.
func ReadHeaders(reader *bufio.Reader) (headers map[string]string, err error) {
	headers = map[string]string{}

	for {
		var line string
		if line, err = reader.ReadString('\n'); err != nil {
			return nil, errors.Wrap(err, "reading headers")
		}

		line = strings.TrimRight(line, "\r\n")
		if len(line) == 0 {
			return headers, nil
		}

		kv := strings.SplitN(line, ":", 2)
		if len(kv) != 2 {
			return nil, errors.Wrapf(ErrMalformed, "header %q", line)
		}

		key := strings.ToLower(strings.TrimSpace(kv[0]))
		headers[key] = strings.TrimSpace(kv[1])
	}
}

// Write the status line and headers of a Response. The body, if any, follows
// and must be exactly ContentLength bytes long.
func (r *Response) WriteHeader(writer io.Writer) (err error) {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.0 %d %s\r\n", r.Status, StatusText(r.Status))
	fmt.Fprintf(&b, "Server: %s\r\n", ServerName)
	if r.ContentType != "" {
		fmt.Fprintf(&b, "Content-Type: %s\r\n", r.ContentType)
	}
	fmt.Fprintf(&b, "Content-Length: %d\r\n", r.ContentLength)
	b.WriteString("Connection: close\r\n\r\n")

	_, err = io.WriteString(writer, b.String())
	return
}

// Read the status line and headers of a Response. The reader is left at the
// start of the body.
func ReadResponseHeader(reader *bufio.Reader) (*Response, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, errors.Wrap(err, "reading status line")
	}

	parts := strings.SplitN(strings.TrimRight(line, "\r\n"), " ", 3)
	if len(parts) < 2 {
		return nil, errors.Wrapf(ErrMalformed, "status line %q", line)
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "status code %q", parts[1])
	}

	headers, err := ReadHeaders(reader)
	if err != nil {
		return nil, err
	}

	res := &Response{
		Status:      status,
		ContentType: headers["content-type"],
		Headers:     headers,
	}
	if v, ok := headers["content-length"]; ok {
		if res.ContentLength, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, errors.Wrapf(ErrMalformed, "content length %q", v)
		}
	}
	return res, nil
}

func sortedKeys(m map[string]string) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
