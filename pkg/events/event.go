package events

import (
	"context"
	"time"

	apiv1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/tless/tless-bench/pkg/clients"
	"github.com/tless/tless-bench/pkg/types"
)

// Component is the event source reported to the cluster
const Component = "tless-bench"

func eventName(eventsDetails *types.EventDetails) string {
	return eventsDetails.ResourceName + "." + eventsDetails.Reason + "." + string(eventsDetails.ResourceUID)
}

//CreateEvents create the events
func CreateEvents(ctx context.Context, eventsDetails *types.EventDetails, clients clients.ClientSets, namespace string) error {

	events := &apiv1.Event{
		ObjectMeta: metav1.ObjectMeta{
			Name:      eventName(eventsDetails),
			Namespace: namespace,
		},
		Source: apiv1.EventSource{
			Component: Component,
		},
		Message:        eventsDetails.Message,
		Reason:         eventsDetails.Reason,
		Type:           eventsDetails.Type,
		Count:          1,
		FirstTimestamp: metav1.Time{Time: time.Now()},
		LastTimestamp:  metav1.Time{Time: time.Now()},
		InvolvedObject: apiv1.ObjectReference{
			APIVersion: "v1",
			Kind:       "Namespace",
			Name:       namespace,
		},
	}

	_, err := clients.KubeClient.CoreV1().Events(namespace).Create(ctx, events, metav1.CreateOptions{})
	return err
}

//GenerateEvents creates the event, or bumps its count when it already exists
func GenerateEvents(ctx context.Context, eventsDetails *types.EventDetails, clients clients.ClientSets, namespace string) error {
	if clients.KubeClient == nil {
		return nil
	}

	event, err := clients.KubeClient.CoreV1().Events(namespace).Get(ctx, eventName(eventsDetails), metav1.GetOptions{})
	if err != nil {
		if k8serrors.IsNotFound(err) {
			return CreateEvents(ctx, eventsDetails, clients, namespace)
		}
		return err
	}

	event.Count = event.Count + 1
	event.Message = eventsDetails.Message
	event.LastTimestamp = metav1.Time{Time: time.Now()}
	_, err = clients.KubeClient.CoreV1().Events(namespace).Update(ctx, event, metav1.UpdateOptions{})
	return err
}
