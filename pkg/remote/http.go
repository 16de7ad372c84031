package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
)

type httpObject struct {
	client *http.Client
	url    string
	name   string
	size   int64
}

func openHTTP(ctx context.Context, u *url.URL) (Object, error) {
	return OpenHTTP(ctx, cleanhttp.DefaultPooledClient(), u.String())
}

// OpenHTTP probes uri with a one-byte range request. The server has to
// support range requests; a plain 200 response is only accepted for an empty
// body, which is how net/http answers ranges on empty content.
func OpenHTTP(ctx context.Context, client *http.Client, uri string) (Object, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, newError(KindProtocol, err, "invalid URI %q", uri)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, newError(KindProtocol, err, "could not build request for %v", uri)
	}
	req.Header.Set("Range", "bytes=0-0")

	res, err := client.Do(req)
	if err != nil {
		return nil, transportError(ctx, err, "could not reach %v", uri)
	}
	defer res.Body.Close()

	var size int64
	switch res.StatusCode {
	case http.StatusPartialContent:
		size, err = parseContentRangeSize(res.Header.Get("Content-Range"))
	case http.StatusRequestedRangeNotSatisfiable:
		// Only an empty resource rejects the first byte.
		size, err = parseContentRangeSize(res.Header.Get("Content-Range"))
		if err == nil && size != 0 {
			err = fmt.Errorf("unexpected status %v for a resource of %v bytes", res.Status, size)
		}
	case http.StatusOK:
		if res.ContentLength != 0 {
			err = errors.New("server does not support range requests")
		}
	default:
		return nil, statusError(res, "could not open %v", uri)
	}
	if err != nil {
		return nil, newError(KindProtocol, err, "could not determine size of %v", uri)
	}

	_, _ = io.Copy(io.Discard, res.Body)

	return &httpObject{
		client: client,
		url:    uri,
		name:   displayName(u, u.Path),
		size:   size,
	}, nil
}

func (o *httpObject) Name() string {
	return o.name
}

func (o *httpObject) Size() int64 {
	return o.size
}

func (o *httpObject) ReadRange(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return 0, newError(KindProtocol, err, "could not build request for %v", o.url)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+int64(len(p))-1))

	res, err := o.client.Do(req)
	if err != nil {
		return 0, transportError(ctx, err, "could not reach %v", o.url)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusPartialContent:
	case http.StatusRequestedRangeNotSatisfiable:
		return 0, nil
	case http.StatusOK:
		return 0, newError(KindProtocol, nil, "server ignored range request for %v", o.url)
	default:
		return 0, statusError(res, "could not read %v", o.url)
	}

	// Servers may shorten a range but must not move its start.
	start, err := parseContentRangeStart(res.Header.Get("Content-Range"))
	if err != nil {
		return 0, newError(KindProtocol, err, "could not read %v", o.url)
	}
	if start != off {
		return 0, newError(KindProtocol, nil, "server returned range at offset %v instead of %v for %v", start, off, o.url)
	}

	n, err := io.ReadFull(res.Body, p)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		if ctx.Err() != nil {
			return 0, transportError(ctx, err, "could not read body of %v", o.url)
		}

		return 0, newError(KindReadWrite, err, "could not read body of %v", o.url)
	}

	return n, nil
}

func statusError(res *http.Response, format string, args ...interface{}) *Error {
	err := fmt.Errorf("unexpected status %v", res.Status)

	switch {
	case res.StatusCode == http.StatusUnauthorized, res.StatusCode == http.StatusForbidden:
		return newError(KindAccess, err, format, args...)
	case res.StatusCode == http.StatusNotFound, res.StatusCode == http.StatusGone:
		return newError(KindNotFound, err, format, args...)
	case res.StatusCode >= 500:
		return newError(KindReadWrite, err, format, args...)
	default:
		return newError(KindProtocol, err, format, args...)
	}
}

// parseContentRangeSize extracts the complete length from "bytes 0-0/1234" or
// "bytes */1234".
func parseContentRangeSize(header string) (int64, error) {
	slash := strings.LastIndexByte(header, '/')
	if !strings.HasPrefix(header, "bytes ") || slash < 0 {
		return 0, fmt.Errorf("malformed Content-Range %q", header)
	}

	total := header[slash+1:]
	if total == "*" {
		return 0, fmt.Errorf("server did not report a length in %q", header)
	}

	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("malformed Content-Range %q", header)
	}

	return size, nil
}

// parseContentRangeStart extracts the first byte position from "bytes 100-199/1234".
func parseContentRangeStart(header string) (int64, error) {
	dash := strings.IndexByte(header, '-')
	if !strings.HasPrefix(header, "bytes ") || dash < 0 {
		return 0, fmt.Errorf("malformed Content-Range %q", header)
	}

	start, err := strconv.ParseInt(header[len("bytes "):dash], 10, 64)
	if err != nil || start < 0 {
		return 0, fmt.Errorf("malformed Content-Range %q", header)
	}

	return start, nil
}
