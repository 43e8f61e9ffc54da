package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tless/tless-bench/pkg/cerrors"
	"github.com/tless/tless-bench/pkg/types"
	"github.com/tless/tless-bench/pkg/workflows"
)

func TestParseBaselines(t *testing.T) {
	baselines, err := parseBaselines([]string{"knative", "confidential-knative", "Protected-Knative"})
	require.NoError(t, err)
	assert.Equal(t, []types.Baseline{types.Knative, types.CcKnative, types.TlessKnative}, baselines)

	_, err = parseBaselines([]string{"knative", "lambda"})
	assert.Equal(t, cerrors.ErrorTypeConfiguration, cerrors.GetErrorType(err))
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"eval", "e2e-latency", "run"},
		{"s3", "list-buckets"},
		{"s3", "list-keys"},
		{"s3", "clear-bucket"},
		{"s3", "clear-dir"},
		{"s3", "upload-dir"},
		{"s3", "upload-workflow"},
		{"s3", "wait-key"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestEvalRun_RequiresBaseline(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"eval", "e2e-latency", "run", "--num-repeats", "1"})
	assert.Error(t, root.ExecuteContext(context.Background()))
}

func TestEvalRun_UnsupportedBaseline(t *testing.T) {
	t.Setenv("COCO_SOURCE", t.TempDir())
	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"eval", "e2e-latency", "run", "--baseline", "faasm"})

	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeConfiguration, cerrors.Classify(err))
}

func TestLoadDetails_FlagsOverrideDefaults(t *testing.T) {
	t.Setenv("COCO_SOURCE", "/coco")
	root := newRootCmd()
	run, _, err := root.Find([]string{"eval", "e2e-latency", "run"})
	require.NoError(t, err)
	require.NoError(t, run.Flags().Set("num-warmup-repeats", "2"))

	details, err := loadDetails(func(v *viper.Viper) error {
		return v.BindPFlag("eval.num_warmup_repeats", run.Flags().Lookup("num-warmup-repeats"))
	})
	require.NoError(t, err)
	assert.Equal(t, 2, details.NumWarmupRepeats)
	assert.Equal(t, 3, details.NumRepeats)
	assert.Equal(t, filepath.Join("/coco", "bin", "kubectl"), details.Kubectl)
}

type recordingUploader struct {
	hostPath, prefix string
	overwrite        bool
}

func (r *recordingUploader) UploadDir(_ context.Context, _, hostPath, prefix string, overwrite bool) error {
	r.hostPath, r.prefix, r.overwrite = hostPath, prefix, overwrite
	return nil
}

func TestUploadWorkflow(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "word-count", "state"), 0755))
	catalog := workflows.New(root)
	d, err := catalog.Lookup("word-count")
	require.NoError(t, err)

	up := &recordingUploader{}
	require.NoError(t, uploadWorkflow(context.Background(), up, catalog, d, "tless", true))
	assert.Equal(t, filepath.Join(root, "word-count", "state"), up.hostPath)
	assert.Equal(t, "word-count", up.prefix)
	assert.True(t, up.overwrite)
}
