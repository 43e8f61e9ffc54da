package lib

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tless/tless-bench/pkg/cerrors"
)

type fakeCluster struct {
	mu       sync.Mutex
	calls    []string
	applied  []string
	deleted  []string
	ip       string
	applyErr error
	waitErr  error
	onApply  func()
}

func (c *fakeCluster) record(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *fakeCluster) Apply(_ context.Context, manifest string) error {
	c.record("Apply")
	if c.onApply != nil {
		c.onApply()
	}
	c.mu.Lock()
	c.applied = append(c.applied, manifest)
	c.mu.Unlock()
	if c.applyErr != nil {
		return c.applyErr
	}
	return nil
}

func (c *fakeCluster) Delete(_ context.Context, manifest string) error {
	c.record("Delete")
	c.mu.Lock()
	c.deleted = append(c.deleted, manifest)
	c.mu.Unlock()
	return nil
}

func (c *fakeCluster) ApplyFile(_ context.Context, path string) error {
	c.record("ApplyFile " + path)
	return nil
}

func (c *fakeCluster) DeleteFile(_ context.Context, path string) error {
	c.record("DeleteFile " + path)
	return nil
}

func (c *fakeCluster) Query(_ context.Context, args ...string) (string, error) {
	c.record("Query " + strings.Join(args, " "))
	return "", nil
}

func (c *fakeCluster) QueryRaw(ctx context.Context, rawCommand string) (string, error) {
	return c.Query(ctx, strings.Fields(rawCommand)...)
}

func (c *fakeCluster) WaitForPods(_ context.Context, namespace, label string, _ int) error {
	c.record("WaitForPods " + namespace + " " + label)
	return c.waitErr
}

func (c *fakeCluster) ServiceClusterIP(_ context.Context, namespace, name string) (string, error) {
	c.record("ServiceClusterIP " + namespace + "/" + name)
	return c.ip, nil
}

func (c *fakeCluster) WaitForNamespaceDrained(_ context.Context, namespace, _ string) error {
	c.record("WaitForNamespaceDrained " + namespace)
	return nil
}

func (c *fakeCluster) count(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

// fakeStore keeps keys in memory. Keys listed in sticky survive ClearDir.
type fakeStore struct {
	mu      sync.Mutex
	keys    map[string]bool
	sticky  map[string]bool
	buckets []string
	waitErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{keys: map[string]bool{}, sticky: map[string]bool{}}
}

func (s *fakeStore) put(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = true
}

func (s *fakeStore) WaitForKey(_ context.Context, _, key string) (time.Time, bool, error) {
	if s.waitErr != nil {
		return time.Time{}, false, s.waitErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[key] {
		return time.Now(), true, nil
	}
	return time.Time{}, false, nil
}

func (s *fakeStore) ClearDir(_ context.Context, _, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.keys {
		if strings.HasPrefix(k, prefix) && !s.sticky[k] {
			delete(s.keys, k)
		}
	}
	return nil
}

func (s *fakeStore) ListKeys(_ context.Context, _, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := []string{}
	for k := range s.keys {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *fakeStore) EnsureBucket(_ context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = append(s.buckets, bucket)
	return nil
}

func (s *fakeStore) UploadDir(context.Context, string, string, string, bool) error {
	return nil
}

var errStoreDown = cerrors.Error{ErrorCode: cerrors.ErrorTypeObjectStore, Reason: "connection refused"}

var errCurl = errors.New("curl: (7) failed to connect")
