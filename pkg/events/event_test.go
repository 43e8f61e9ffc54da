package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apiv1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/tless/tless-bench/pkg/clients"
	"github.com/tless/tless-bench/pkg/types"
)

func TestGenerateEvents(t *testing.T) {
	c := clients.ClientSets{KubeClient: fake.NewSimpleClientset()}
	details := types.EventDetails{}
	types.SetEventAttributes(&details, types.WorkflowDeployed, "word-count is ready", apiv1.EventTypeNormal, "word-count")
	details.ResourceUID = "run-1"

	require.NoError(t, GenerateEvents(context.Background(), &details, c, "tless"))
	require.NoError(t, GenerateEvents(context.Background(), &details, c, "tless"))

	list, err := c.KubeClient.CoreV1().Events("tless").List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, int32(2), list.Items[0].Count)
	assert.Equal(t, types.WorkflowDeployed, list.Items[0].Reason)
	assert.Equal(t, Component, list.Items[0].Source.Component)
}

func TestGenerateEvents_NoClient(t *testing.T) {
	assert.NoError(t, GenerateEvents(context.Background(), &types.EventDetails{}, clients.ClientSets{}, "tless"))
}
