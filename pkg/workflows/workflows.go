// Package workflows is the registry of benchmarked workflows.
package workflows

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/palantir/stacktrace"
	"gopkg.in/yaml.v2"

	"github.com/tless/tless-bench/pkg/cerrors"
	"github.com/tless/tless-bench/pkg/log"
)

// ErrUnknownWorkflow is returned for names outside the catalog
var ErrUnknownWorkflow = errors.New("unknown workflow")

// Descriptor is everything the orchestrator needs to know about a workflow
type Descriptor struct {
	Name      string `yaml:"name"`
	Namespace string `yaml:"namespace"`
	// ReadinessLabels each select exactly one pod that must be Ready
	ReadinessLabels []string `yaml:"readinessLabels"`
	// InputSet names the input data set, the second segment of every key
	InputSet string `yaml:"inputSet"`
	// CompletionKey is the key the last stage writes, relative to the bucket.
	// {input-set} is replaced with InputSet.
	CompletionKey string `yaml:"completionKey"`
	CleanupPrefix string `yaml:"cleanupPrefix"`
	// StateDir is the host directory uploaded to <name>/ before the run,
	// relative to the workflow directory
	StateDir string `yaml:"stateDir"`
}

// Catalog is an ordered, immutable set of descriptors rooted at a directory
type Catalog struct {
	root        string
	descriptors []Descriptor
}

// Builtin are the workflows compiled into the harness
var Builtin = []Descriptor{
	{
		Name:      "word-count",
		Namespace: "tless",
		ReadinessLabels: []string{
			"tless.workflows/name=word-count-splitter",
			"tless.workflows/name=word-count-reducer",
		},
		InputSet:      "few-files",
		CompletionKey: "word-count/{input-set}/mapper-results/aggregated-results.txt",
		CleanupPrefix: "word-count/{input-set}/mapper-results/",
		StateDir:      "state",
	},
}

// New returns the built-in catalog rooted at root
func New(root string) *Catalog {
	return &Catalog{root: root, descriptors: append([]Descriptor(nil), Builtin...)}
}

type catalogFile struct {
	Workflows []Descriptor `yaml:"workflows"`
}

// Load returns the built-in catalog with the descriptors of overridePath
// merged in. Fields left empty in the file keep their built-in value and
// unknown names are appended.
func Load(root, overridePath string) (*Catalog, error) {
	c := New(root)
	if overridePath == "" {
		return c, nil
	}
	data, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, stacktrace.Propagate(cerrors.Configuration(err.Error()), "could not read workflow catalog")
	}
	file := catalogFile{}
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, stacktrace.Propagate(cerrors.Configuration(err.Error()), "could not parse workflow catalog %s", overridePath)
	}
	for _, d := range file.Workflows {
		if d.Name == "" {
			return nil, cerrors.Configuration("workflow catalog entry without a name")
		}
		c.merge(d)
	}
	return c, nil
}

func (c *Catalog) merge(d Descriptor) {
	for i := range c.descriptors {
		cur := &c.descriptors[i]
		if cur.Name != d.Name {
			continue
		}
		if d.Namespace != "" {
			cur.Namespace = d.Namespace
		}
		if len(d.ReadinessLabels) != 0 {
			cur.ReadinessLabels = d.ReadinessLabels
		}
		if d.InputSet != "" {
			cur.InputSet = d.InputSet
		}
		if d.CompletionKey != "" {
			cur.CompletionKey = d.CompletionKey
		}
		if d.CleanupPrefix != "" {
			cur.CleanupPrefix = d.CleanupPrefix
		}
		if d.StateDir != "" {
			cur.StateDir = d.StateDir
		}
		return
	}
	log.Infof("[Catalog]: adding workflow %s from catalog file", d.Name)
	c.descriptors = append(c.descriptors, d)
}

// Root is the workflows directory
func (c *Catalog) Root() string {
	return c.root
}

// All returns the descriptors in catalog order
func (c *Catalog) All() []Descriptor {
	return append([]Descriptor(nil), c.descriptors...)
}

// Lookup finds a descriptor by name
func (c *Catalog) Lookup(name string) (Descriptor, error) {
	for _, d := range c.descriptors {
		if d.Name == name {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownWorkflow, name)
}

// CommonManifestPath is the shared infrastructure manifest
func (c *Catalog) CommonManifestPath() string {
	return filepath.Join(c.root, "k8s_common.yaml")
}

// ManifestPath is <root>/<name>/knative/workflow.yaml
func (c *Catalog) ManifestPath(d Descriptor) string {
	return filepath.Join(c.root, d.Name, "knative", "workflow.yaml")
}

// TriggerPath is <root>/<name>/knative/curl_cmd.sh
func (c *Catalog) TriggerPath(d Descriptor) string {
	return filepath.Join(c.root, d.Name, "knative", "curl_cmd.sh")
}

// StatePath is the host directory holding the workflow inputs
func (c *Catalog) StatePath(d Descriptor) string {
	return filepath.Join(c.root, d.Name, d.StateDir)
}

// CompletionKeyFor is the key whose appearance marks the end of an execution on inputSet
func (d Descriptor) CompletionKeyFor(inputSet string) string {
	return strings.ReplaceAll(d.CompletionKey, "{input-set}", inputSet)
}

// Key is the completion key for the descriptor's own input set
func (d Descriptor) Key() string {
	return d.CompletionKeyFor(d.InputSet)
}

// Prefix is the output prefix cleared after every execution
func (d Descriptor) Prefix() string {
	return strings.ReplaceAll(d.CleanupPrefix, "{input-set}", d.InputSet)
}

// Uploader is the part of the object store UploadState needs
type Uploader interface {
	UploadDir(ctx context.Context, bucket, hostPath, prefix string, overwrite bool) error
}

// UploadState uploads every workflow's host input directory to
// <bucket>/<name>/. Workflows without a state directory on disk are skipped.
func (c *Catalog) UploadState(ctx context.Context, store Uploader, bucket string, overwrite bool) error {
	for _, d := range c.descriptors {
		dir := c.StatePath(d)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			log.Warnf("[Catalog]: no state directory for %s at %s, skipping upload", d.Name, dir)
			continue
		}
		if err := store.UploadDir(ctx, bucket, dir, d.Name, overwrite); err != nil {
			return stacktrace.Propagate(err, "could not upload state of %s", d.Name)
		}
	}
	return nil
}
