package remote

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const timeout = 5 * time.Second

func pattern(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}

	return data
}

func memObject(t *testing.T, name string, data []byte) Object {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, name, data, 0644))

	object, err := OpenFs(fs, name)
	require.NoError(t, err)

	return object
}

type countingObject struct {
	Object
	reads int32
}

func (o *countingObject) ReadRange(ctx context.Context, p []byte, off int64) (int, error) {
	atomic.AddInt32(&o.reads, 1)

	return o.Object.ReadRange(ctx, p, off)
}

func TestReadAtReturnsShortReadAtEnd(t *testing.T) {
	data := pattern(10000000)
	file := NewFile(memObject(t, "/resource.bin", data))
	require.NoError(t, file.AdjustCacheSize(1, 1048576))

	assert.Equal(t, uint64(10000000), file.Size())
	assert.Equal(t, "resource.bin", file.Name())

	buf := make([]byte, 4096)
	n, err := file.ReadAt(buf, 9999990, timeout)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, data[9999990:], buf[:n])
}

func TestReadAtPastEnd(t *testing.T) {
	file := NewFile(memObject(t, "/small", []byte("hello")))

	n, err := file.ReadAt(make([]byte, 16), 5, timeout)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = file.ReadAt(make([]byte, 16), 100, timeout)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReadAtRejectsNegativeOffset(t *testing.T) {
	file := NewFile(memObject(t, "/small", []byte("hello")))

	_, err := file.ReadAt(make([]byte, 1), -1, timeout)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, syscall.EINVAL, rerr.Errno())
}

func TestReadAtSpansBlocks(t *testing.T) {
	data := pattern(100)
	object := &countingObject{Object: memObject(t, "/blocks", data)}
	file := NewFile(object)
	require.NoError(t, file.AdjustCacheSize(16, 10))

	buf := make([]byte, 25)
	n, err := file.ReadAt(buf, 15, timeout)
	require.NoError(t, err)
	assert.Equal(t, 25, n)
	assert.Equal(t, data[15:40], buf)
	assert.Equal(t, int32(3), atomic.LoadInt32(&object.reads))

	n, err = file.ReadAt(buf[:5], 20, timeout)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, data[20:25], buf[:5])
	assert.Equal(t, int32(3), atomic.LoadInt32(&object.reads))
}

func TestAdjustCacheSizeBoundsCachedBlocks(t *testing.T) {
	data := pattern(40)
	object := &countingObject{Object: memObject(t, "/evict", data)}
	file := NewFile(object)
	require.NoError(t, file.AdjustCacheSize(1, 10))

	buf := make([]byte, 1)
	for _, off := range []int64{0, 10, 0} {
		_, err := file.ReadAt(buf, off, timeout)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(3), atomic.LoadInt32(&object.reads))
	assert.Error(t, file.AdjustCacheSize(0, 10))
}

func TestOpenRejectsUnknownScheme(t *testing.T) {
	_, err := Open("gopher://example.com/file", timeout)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindUnsupported, rerr.Kind)
}

func TestOpenFileScheme(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0644))

	file, err := Open("file://"+path, timeout)
	require.NoError(t, err)
	assert.Equal(t, "disk.img", file.Name())
	assert.Equal(t, uint64(10), file.Size())

	buf := make([]byte, 4)
	n, err := file.ReadAt(buf, 8, timeout)
	require.NoError(t, err)
	assert.Equal(t, "89", string(buf[:n]))

	_, err = Open("file://"+filepath.Join(t.TempDir(), "missing"), timeout)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindNotFound, rerr.Kind)
}

func TestOpenFsRejectsDirectories(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.Mkdir("/dir", 0755))

	_, err := OpenFs(fs, "/dir")

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindUnsupported, rerr.Kind)
}

func serveContent(data []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
	}
}

func TestOpenHTTP(t *testing.T) {
	data := pattern(3000)
	srv := httptest.NewServer(serveContent(data))
	defer srv.Close()

	file, err := Open(srv.URL+"/images/debian.iso", timeout)
	require.NoError(t, err)
	assert.Equal(t, "debian.iso", file.Name())
	assert.Equal(t, uint64(3000), file.Size())

	require.NoError(t, file.AdjustCacheSize(4, 1024))

	buf := make([]byte, 2048)
	n, err := file.ReadAt(buf, 1000, timeout)
	require.NoError(t, err)
	assert.Equal(t, 2000, n)
	assert.Equal(t, data[1000:], buf[:n])
}

func TestOpenHTTPEmptyResource(t *testing.T) {
	srv := httptest.NewServer(serveContent(nil))
	defer srv.Close()

	file, err := Open(srv.URL+"/empty", timeout)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), file.Size())

	n, err := file.ReadAt(make([]byte, 10), 0, timeout)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOpenHTTPNameFallsBackToHost(t *testing.T) {
	srv := httptest.NewServer(serveContent([]byte("x")))
	defer srv.Close()

	file, err := Open(srv.URL, timeout)
	require.NoError(t, err)
	assert.Equal(t, strings.TrimPrefix(srv.URL, "http://"), file.Name())
}

func TestOpenHTTPClassifiesStatus(t *testing.T) {
	for _, tc := range []struct {
		status int
		kind   Kind
	}{
		{http.StatusForbidden, KindAccess},
		{http.StatusUnauthorized, KindAccess},
		{http.StatusNotFound, KindNotFound},
		{http.StatusBadGateway, KindReadWrite},
		{http.StatusTeapot, KindProtocol},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		_, err := Open(srv.URL+"/file", timeout)
		srv.Close()

		var rerr *Error
		require.ErrorAs(t, err, &rerr, "status %v", tc.status)
		assert.Equal(t, tc.kind, rerr.Kind, "status %v", tc.status)
	}
}

func TestOpenHTTPRequiresRangeSupport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("whole body"))
	}))
	defer srv.Close()

	_, err := Open(srv.URL+"/file", timeout)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindProtocol, rerr.Kind)
}

func TestOpenHTTPTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	_, err := Open(srv.URL+"/slow", 50*time.Millisecond)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindGeneric, rerr.Kind)
	assert.Equal(t, syscall.ETIMEDOUT, rerr.Errno())
}

func TestHTTPReadFailureIsCategorized(t *testing.T) {
	var fail atomic.Bool
	data := pattern(100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		serveContent(data)(w, r)
	}))
	defer srv.Close()

	file, err := Open(srv.URL+"/file", timeout)
	require.NoError(t, err)

	fail.Store(true)

	_, err = file.ReadAt(make([]byte, 10), 0, timeout)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindAccess, rerr.Kind)
}

// cappedContent serves ranges of data but never more than limit bytes per
// response, like origins and CDNs that cap range sizes.
func cappedContent(data []byte, limit int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		size := int64(len(data))

		var start, end int64
		if _, err := fmt.Sscanf(r.Header.Get("Range"), "bytes=%d-%d", &start, &end); err != nil || start >= size {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}

		if end >= size {
			end = size - 1
		}
		if end-start+1 > limit {
			end = start + limit - 1
		}

		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(data[start : end+1])
	}
}

func TestHTTPReadAtCompletesCappedRanges(t *testing.T) {
	data := pattern(4 * 1024 * 1024)
	srv := httptest.NewServer(cappedContent(data, 64*1024))
	defer srv.Close()

	file, err := Open(srv.URL+"/debian.iso", timeout)
	require.NoError(t, err)
	require.Equal(t, uint64(len(data)), file.Size())

	buf := make([]byte, 4096)
	n, err := file.ReadAt(buf, 100000, timeout)
	require.NoError(t, err)
	assert.Equal(t, 4096, n)
	assert.Equal(t, data[100000:104096], buf)

	buf = make([]byte, 300000)
	n, err = file.ReadAt(buf, 1000000, timeout)
	require.NoError(t, err)
	assert.Equal(t, 300000, n)
	assert.Equal(t, data[1000000:1300000], buf)

	buf = make([]byte, 4096)
	n, err = file.ReadAt(buf, int64(len(data))-10, timeout)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, data[len(data)-10:], buf[:n])
}

func TestHTTPReadRejectsMovedRange(t *testing.T) {
	data := pattern(100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 0-9/100")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(data[:10])
	}))
	defer srv.Close()

	file, err := Open(srv.URL+"/file", timeout)
	require.NoError(t, err)
	require.NoError(t, file.AdjustCacheSize(4, 16))

	_, err = file.ReadAt(make([]byte, 10), 50, timeout)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindProtocol, rerr.Kind)
}

// truncatedObject stops returning data at limit although its size is larger.
type truncatedObject struct {
	Object
	limit int64
}

func (o *truncatedObject) ReadRange(ctx context.Context, p []byte, off int64) (int, error) {
	if off >= o.limit {
		return 0, nil
	}

	if remaining := o.limit - off; int64(len(p)) > remaining {
		p = p[:remaining]
	}

	return o.Object.ReadRange(ctx, p, off)
}

func TestReadAtFailsOnTruncatedObject(t *testing.T) {
	file := NewFile(&truncatedObject{Object: memObject(t, "/file", pattern(10000)), limit: 5000})
	require.NoError(t, file.AdjustCacheSize(4, 4096))

	n, err := file.ReadAt(make([]byte, 100), 0, timeout)
	require.NoError(t, err)
	assert.Equal(t, 100, n)

	for _, off := range []int64{4090, 6000} {
		n, err := file.ReadAt(make([]byte, 100), off, timeout)

		var rerr *Error
		require.ErrorAs(t, err, &rerr, "offset %v", off)
		assert.Equal(t, KindReadWrite, rerr.Kind)
		assert.Equal(t, 0, n)
	}

	assert.Equal(t, 1, file.blocks.Len())
}

func TestParseContentRangeStart(t *testing.T) {
	for header, want := range map[string]int64{
		"bytes 0-0/1234":              0,
		"bytes 100000-165535/4194304": 100000,
	} {
		start, err := parseContentRangeStart(header)
		require.NoError(t, err, header)
		assert.Equal(t, want, start, header)
	}

	for _, header := range []string{"", "bytes */10", "items 0-0/10", "bytes -5-0/10"} {
		_, err := parseContentRangeStart(header)
		assert.Error(t, err, header)
	}
}

func TestDisplayName(t *testing.T) {
	for uri, want := range map[string]string{
		"http://example.com/images/debian.iso": "debian.iso",
		"http://example.com/images/":           "images",
		"http://example.com":                   "example.com",
		"http://example.com/":                  "example.com",
		"http://example.com/..":                "example.com",
		"http://example.com/a/..":              "example.com",
	} {
		u, err := url.Parse(uri)
		require.NoError(t, err)
		assert.Equal(t, want, displayName(u, u.Path), uri)
	}
}

func TestParseContentRangeSize(t *testing.T) {
	for header, want := range map[string]int64{
		"bytes 0-0/1234": 1234,
		"bytes */0":      0,
	} {
		size, err := parseContentRangeSize(header)
		require.NoError(t, err, header)
		assert.Equal(t, want, size, header)
	}

	for _, header := range []string{"", "bytes 0-0/*", "items 0-0/10", "bytes 0-0/-1"} {
		_, err := parseContentRangeSize(header)
		assert.Error(t, err, header)
	}
}

func TestOpenS3RejectsMalformedURI(t *testing.T) {
	for _, uri := range []string{"s3://endpoint/bucket", "s3:///bucket/key", "s3+http://endpoint//key"} {
		_, err := Open(uri, timeout)

		var rerr *Error
		require.ErrorAs(t, err, &rerr, uri)
		assert.Equal(t, KindProtocol, rerr.Kind, uri)
	}
}

func TestErrorFormatting(t *testing.T) {
	err := newError(KindAccess, nil, "could not open %v", "x")
	assert.Equal(t, "IOAccessError: could not open x", err.Error())

	err = newError(KindGeneric, syscall.ECONNREFUSED, "could not reach %v", "y")
	assert.Equal(t, syscall.ECONNREFUSED, err.Errno())
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
}
