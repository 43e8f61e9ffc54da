// Package objectstore talks to the MinIO server the workflows write their
// outputs to. Completion of a workflow is observed as the appearance of a key.
package objectstore

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/palantir/stacktrace"
	"github.com/sirupsen/logrus"

	"github.com/tless/tless-bench/pkg/cerrors"
	"github.com/tless/tless-bench/pkg/log"
)

// Store is the object-store surface used by the orchestrator
type Store interface {
	WaitForKey(ctx context.Context, bucket, key string) (time.Time, bool, error)
	ClearDir(ctx context.Context, bucket, prefix string) error
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
	EnsureBucket(ctx context.Context, bucket string) error
	UploadDir(ctx context.Context, bucket, hostPath, prefix string, overwrite bool) error
}

// Options configures a Client. Endpoint is the full URL of the server, for
// example http://10.96.4.20:9000.
type Options struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Region       string
	PollInterval time.Duration
	KeyTimeout   time.Duration
}

// Client is an S3 client bound to a single endpoint
type Client struct {
	api          s3iface.S3API
	uploader     *s3manager.Uploader
	endpoint     string
	pollInterval time.Duration
	keyTimeout   time.Duration
}

// Endpoint builds the server URL from a cluster IP and port
func Endpoint(host string, port int) string {
	host = strings.TrimSpace(host)
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

// New creates a client for opts.Endpoint
func New(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, cerrors.Configuration("object store endpoint is empty")
	}
	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(opts.Endpoint),
		Region:           aws.String(opts.Region),
		Credentials:      credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
		DisableSSL:       aws.Bool(strings.HasPrefix(opts.Endpoint, "http://")),
		MaxRetries:       aws.Int(2),
	})
	if err != nil {
		return nil, stacktrace.Propagate(cerrors.Error{ErrorCode: cerrors.ErrorTypeObjectStore, Target: opts.Endpoint, Reason: err.Error()}, "could not create s3 session")
	}
	api := s3.New(sess)
	return &Client{
		api:          api,
		uploader:     s3manager.NewUploaderWithClient(api),
		endpoint:     opts.Endpoint,
		pollInterval: opts.PollInterval,
		keyTimeout:   opts.KeyTimeout,
	}, nil
}

func (c *Client) storeError(ctx context.Context, err error, target, msg string) error {
	if ctx.Err() != nil {
		return stacktrace.Propagate(ctx.Err(), msg)
	}
	return stacktrace.Propagate(cerrors.Error{ErrorCode: cerrors.ErrorTypeObjectStore, Target: target, Reason: err.Error()}, msg)
}

func isNotFound(err error) bool {
	if reqErr, ok := err.(awserr.RequestFailure); ok && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return true
		}
	}
	return false
}

// WaitForKey polls for key until it exists or the key timeout elapses. The
// returned time is the local clock at the poll that first saw the key.
// found is false on timeout; err is set only for failures other than
// the key being absent.
func (c *Client) WaitForKey(ctx context.Context, bucket, key string) (time.Time, bool, error) {
	var deadline <-chan time.Time
	if c.keyTimeout > 0 {
		timer := time.NewTimer(c.keyTimeout)
		defer timer.Stop()
		deadline = timer.C
	}
	interval := c.pollInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	for {
		_, err := c.api.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			return time.Now(), true, nil
		}
		if !isNotFound(err) {
			return time.Time{}, false, c.storeError(ctx, err, bucket+"/"+key, "could not check key")
		}

		select {
		case <-ctx.Done():
			return time.Time{}, false, ctx.Err()
		case <-deadline:
			log.WarnWithValues("[Wait]: Timed out waiting for key", logrus.Fields{"Bucket": bucket, "Key": key, "Timeout": c.keyTimeout})
			return time.Time{}, false, nil
		case <-time.After(interval):
		}
	}
}

// ListKeys lists every key under prefix
func (c *Client) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	keys := []string{}
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	err := c.api.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, c.storeError(ctx, err, bucket+"/"+prefix, "could not list keys")
	}
	return keys, nil
}

// ListBuckets lists the bucket names of the server
func (c *Client) ListBuckets(ctx context.Context) ([]string, error) {
	out, err := c.api.ListBucketsWithContext(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, c.storeError(ctx, err, c.endpoint, "could not list buckets")
	}
	names := make([]string, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		names = append(names, aws.StringValue(b.Name))
	}
	return names, nil
}

// ClearDir deletes every key under prefix
func (c *Client) ClearDir(ctx context.Context, bucket, prefix string) error {
	keys, err := c.ListKeys(ctx, bucket, prefix)
	if err != nil {
		return err
	}
	for start := 0; start < len(keys); start += 1000 {
		end := start + 1000
		if end > len(keys) {
			end = len(keys)
		}
		objects := make([]*s3.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, &s3.ObjectIdentifier{Key: aws.String(key)})
		}
		out, err := c.api.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &s3.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return c.storeError(ctx, err, bucket+"/"+prefix, "could not delete keys")
		}
		if len(out.Errors) != 0 {
			return stacktrace.Propagate(cerrors.Error{ErrorCode: cerrors.ErrorTypeObjectStore, Target: bucket + "/" + aws.StringValue(out.Errors[0].Key), Reason: aws.StringValue(out.Errors[0].Message)}, "could not delete keys")
		}
	}
	log.Debugf("[ObjectStore]: cleared %d keys under %s/%s", len(keys), bucket, prefix)
	return nil
}

// ClearBucket deletes every key of the bucket
func (c *Client) ClearBucket(ctx context.Context, bucket string) error {
	return c.ClearDir(ctx, bucket, "")
}

// EnsureBucket creates the bucket unless it already exists
func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := c.api.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return c.storeError(ctx, err, bucket, "could not check bucket")
	}
	if _, err := c.api.CreateBucketWithContext(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == s3.ErrCodeBucketAlreadyOwnedByYou || aerr.Code() == s3.ErrCodeBucketAlreadyExists) {
			return nil
		}
		return c.storeError(ctx, err, bucket, "could not create bucket")
	}
	log.Infof("[ObjectStore]: created bucket %s", bucket)
	return nil
}

func (c *Client) exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.api.HeadObjectWithContext(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, c.storeError(ctx, err, bucket+"/"+key, "could not check key")
}

// UploadDir uploads every regular file below hostPath to prefix, keeping
// the relative layout. Existing keys are skipped unless overwrite is set.
func (c *Client) UploadDir(ctx context.Context, bucket, hostPath, prefix string, overwrite bool) error {
	uploaded := 0
	err := filepath.WalkDir(hostPath, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(hostPath, p)
		if err != nil {
			return err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))
		if !overwrite {
			found, err := c.exists(ctx, bucket, key)
			if err != nil {
				return err
			}
			if found {
				return nil
			}
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := c.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   f,
		}, func(u *s3manager.Uploader) { u.Concurrency = 1 }); err != nil {
			return c.storeError(ctx, err, bucket+"/"+key, "could not upload file")
		}
		uploaded++
		return nil
	})
	if err != nil {
		if _, ok := stacktrace.RootCause(err).(cerrors.Error); ok || ctx.Err() != nil {
			return err
		}
		return stacktrace.Propagate(cerrors.Error{ErrorCode: cerrors.ErrorTypeObjectStore, Target: hostPath, Reason: err.Error()}, "could not upload directory")
	}
	log.InfoWithValues("[ObjectStore]: Uploaded directory", logrus.Fields{"Bucket": bucket, "Prefix": prefix, "Files": uploaded})
	return nil
}

var _ Store = (*Client)(nil)
