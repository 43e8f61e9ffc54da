package clients

import (
	"context"

	"github.com/pkg/errors"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ClientSets is a collection of clientSets and kubeConfig needed
type ClientSets struct {
	KubeClient    kubernetes.Interface
	KubeConfig    *rest.Config
	DynamicClient dynamic.Interface
	Context       context.Context
}

// GenerateClientSetFromKubeConfig builds the typed and dynamic clients from
// kubeconfigPath. An empty path falls back to the in-cluster config.
func (clientSets *ClientSets) GenerateClientSetFromKubeConfig(ctx context.Context, kubeconfigPath string) error {
	config, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	if err != nil {
		return errors.Wrapf(err, "unable to load kubeconfig %q", kubeconfigPath)
	}
	k8sClientSet, err := generateK8sClientSet(config)
	if err != nil {
		return err
	}
	dynamicClientSet, err := dynamic.NewForConfig(config)
	if err != nil {
		return errors.Wrapf(err, "unable to generate dynamic clientSet")
	}
	clientSets.KubeClient = k8sClientSet
	clientSets.KubeConfig = config
	clientSets.DynamicClient = dynamicClientSet
	clientSets.Context = ctx
	return nil
}

// generateK8sClientSet will generation k8s client
func generateK8sClientSet(config *rest.Config) (*kubernetes.Clientset, error) {
	k8sClientSet, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to generate kubernetes clientSet, err: %v: ", err)
	}
	return k8sClientSet, nil
}
