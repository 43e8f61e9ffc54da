package objectstore

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// s3Stub serves the handful of path-style S3 calls the client makes
type s3Stub struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
	heads   int
	// failHead makes object HEAD requests return this status
	failHead int
}

func newS3Stub(t *testing.T, buckets ...string) (*s3Stub, *Client) {
	stub := &s3Stub{buckets: map[string]map[string][]byte{}}
	for _, b := range buckets {
		stub.buckets[b] = map[string][]byte{}
	}
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)

	client, err := New(Options{
		Endpoint:     server.URL,
		AccessKey:    "minio",
		SecretKey:    "minio123",
		Region:       "us-east-1",
		PollInterval: time.Millisecond,
		KeyTimeout:   200 * time.Millisecond,
	})
	require.NoError(t, err)
	return stub, client
}

func (s *s3Stub) put(bucket, key, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[bucket][key] = []byte(body)
}

func (s *s3Stub) keys(bucket string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := []string{}
	for k := range s.buckets[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type listResult struct {
	XMLName     xml.Name `xml:"ListBucketResult"`
	Name        string
	KeyCount    int
	IsTruncated bool
	Contents    []struct {
		Key  string
		Size int
	}
}

type deleteRequest struct {
	Objects []struct {
		Key string
	} `xml:"Object"`
}

func (s *s3Stub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	bucket := parts[0]
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	if bucket == "" {
		fmt.Fprint(w, `<ListAllMyBucketsResult><Buckets>`)
		names := []string{}
		for b := range s.buckets {
			names = append(names, b)
		}
		sort.Strings(names)
		for _, b := range names {
			fmt.Fprintf(w, `<Bucket><Name>%s</Name></Bucket>`, b)
		}
		fmt.Fprint(w, `</Buckets></ListAllMyBucketsResult>`)
		return
	}

	objects, ok := s.buckets[bucket]
	if !ok && !(r.Method == http.MethodPut && key == "") {
		w.WriteHeader(http.StatusNotFound)
		if r.Method != http.MethodHead {
			fmt.Fprint(w, `<Error><Code>NoSuchBucket</Code></Error>`)
		}
		return
	}

	switch {
	case r.Method == http.MethodPut && key == "":
		s.buckets[bucket] = map[string][]byte{}
	case r.Method == http.MethodHead && key == "":
	case r.Method == http.MethodHead:
		s.heads++
		if s.failHead != 0 {
			w.WriteHeader(s.failHead)
			return
		}
		if _, ok := objects[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		objects[key] = body
		w.Header().Set("ETag", `"stub"`)
	case r.Method == http.MethodPost && r.URL.Query().Has("delete"):
		req := deleteRequest{}
		body, _ := io.ReadAll(r.Body)
		_ = xml.Unmarshal(body, &req)
		for _, o := range req.Objects {
			delete(objects, o.Key)
		}
		fmt.Fprint(w, `<DeleteResult></DeleteResult>`)
	case r.Method == http.MethodGet && key == "":
		prefix := r.URL.Query().Get("prefix")
		out := listResult{Name: bucket}
		names := []string{}
		for k := range objects {
			if strings.HasPrefix(k, prefix) {
				names = append(names, k)
			}
		}
		sort.Strings(names)
		for _, k := range names {
			out.Contents = append(out.Contents, struct {
				Key  string
				Size int
			}{Key: k, Size: len(objects[k])})
		}
		out.KeyCount = len(names)
		b, _ := xml.Marshal(out)
		_, _ = w.Write(b)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}
