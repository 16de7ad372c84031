package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type s3Object struct {
	client *minio.Client
	bucket string
	key    string
	name   string
	size   int64
}

// openS3 accepts s3://endpoint/bucket/key (TLS) and s3+http://endpoint/bucket/key.
// Requests are unsigned, so only publicly readable objects can be mounted.
func openS3(ctx context.Context, u *url.URL) (Object, error) {
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	if u.Host == "" || len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, newError(KindProtocol, nil, "expected %v://endpoint/bucket/key, got %q", u.Scheme, u.String())
	}

	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4("", "", ""),
		Secure: u.Scheme == "s3",
	})
	if err != nil {
		return nil, newError(KindProtocol, err, "could not create S3 client for %v", u.Host)
	}

	return OpenS3(ctx, client, parts[0], parts[1])
}

func OpenS3(ctx context.Context, client *minio.Client, bucket string, key string) (Object, error) {
	info, err := client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, s3Error(ctx, err, "could not stat %v/%v", bucket, key)
	}

	return &s3Object{
		client: client,
		bucket: bucket,
		key:    key,
		name:   displayName(&url.URL{Host: bucket}, key),
		size:   info.Size,
	}, nil
}

func (o *s3Object) Name() string {
	return o.name
}

func (o *s3Object) Size() int64 {
	return o.size
}

func (o *s3Object) ReadRange(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(off, off+int64(len(p))-1); err != nil {
		return 0, newError(KindProtocol, err, "invalid range at offset %v", off)
	}

	object, err := o.client.GetObject(ctx, o.bucket, o.key, opts)
	if err != nil {
		return 0, s3Error(ctx, err, "could not read %v/%v", o.bucket, o.key)
	}
	defer object.Close()

	n, err := io.ReadFull(object, p)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, s3Error(ctx, err, "could not read %v/%v", o.bucket, o.key)
	}

	return n, nil
}

func s3Error(ctx context.Context, err error, format string, args ...interface{}) *Error {
	res := minio.ToErrorResponse(err)

	switch {
	case res.Code == "AccessDenied", res.StatusCode == http.StatusForbidden, res.StatusCode == http.StatusUnauthorized:
		return newError(KindAccess, err, format, args...)
	case res.Code == "NoSuchKey", res.Code == "NoSuchBucket", res.StatusCode == http.StatusNotFound:
		return newError(KindNotFound, err, format, args...)
	case res.StatusCode >= 500:
		return newError(KindReadWrite, err, format, args...)
	default:
		return transportError(ctx, err, format, args...)
	}
}
