package clients

import (
	"context"
	"time"

	core_v1 "k8s.io/api/core/v1"
	v1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/tless/tless-bench/pkg/utils/retry"
)

var (
	defaultAttempts uint = 3
	defaultDelay         = 2 * time.Second
)

// KnativeServiceGVR addresses serving.knative.dev/v1 services
var KnativeServiceGVR = schema.GroupVersionResource{Group: "serving.knative.dev", Version: "v1", Resource: "services"}

// ListPods lists the pods of namespace matching the label selector,
// retrying transient API errors a few times
func (clients *ClientSets) ListPods(ctx context.Context, namespace, labels string) (*core_v1.PodList, error) {
	var (
		pods *core_v1.PodList
		err  error
	)

	if err := retry.
		Times(defaultAttempts).
		Wait(defaultDelay).
		Try(func(attempt uint) error {
			pods, err = clients.KubeClient.CoreV1().Pods(namespace).List(ctx, v1.ListOptions{LabelSelector: labels})
			if ctx.Err() != nil {
				return nil
			}
			return err
		}); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return pods, nil
}

// GetService fetches a single service
func (clients *ClientSets) GetService(ctx context.Context, namespace, name string) (*core_v1.Service, error) {
	return clients.KubeClient.CoreV1().Services(namespace).Get(ctx, name, v1.GetOptions{})
}

// ListKnativeServices lists the Knative services left in namespace
func (clients *ClientSets) ListKnativeServices(ctx context.Context, namespace string) (*unstructured.UnstructuredList, error) {
	return clients.DynamicClient.Resource(KnativeServiceGVR).Namespace(namespace).List(ctx, v1.ListOptions{})
}
