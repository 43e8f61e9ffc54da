package status

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	logrus "github.com/sirupsen/logrus"
	v1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/labels"

	"github.com/tless/tless-bench/pkg/clients"
	"github.com/tless/tless-bench/pkg/log"
)

// AllReady is the readiness rule shared by the kubectl and client-go paths:
// exactly expected values, every one of them "True"
func AllReady(values []string, expected int) bool {
	if len(values) != expected {
		return false
	}
	for _, v := range values {
		if strings.Trim(v, "'\"") != "True" {
			return false
		}
	}
	return true
}

// ParseReadyStatuses splits the output of the Ready-condition jsonpath query
func ParseReadyStatuses(output string) []string {
	return strings.Fields(strings.Trim(strings.TrimSpace(output), "'"))
}

// ReadyConditions returns the Ready condition status of every pod that
// reports one, in the same shape the jsonpath query prints
func ReadyConditions(pods []v1.Pod) []string {
	values := []string{}
	for _, pod := range pods {
		for _, cond := range pod.Status.Conditions {
			if cond.Type == v1.PodReady {
				values = append(values, string(cond.Status))
			}
		}
	}
	return values
}

// CheckPodsReady reports whether exactly expected pods matching label are Ready
func CheckPodsReady(ctx context.Context, clients clients.ClientSets, namespace, label string, expected int) (bool, error) {
	podList, err := clients.ListPods(ctx, namespace, label)
	if err != nil {
		return false, errors.Errorf("unable to list the pods with matching labels, err: %v", err)
	}
	values := ReadyConditions(podList.Items)
	log.InfoWithValues("[Status]: The pod readiness is as follows", logrus.Fields{
		"Namespace": namespace, "Label": label, "Ready": strings.Join(values, " "), "Expected": expected})
	return AllReady(values, expected), nil
}

// CheckNamespaceDrained reports whether namespace holds no Knative services
// and only pods matching keepLabel
func CheckNamespaceDrained(ctx context.Context, clients clients.ClientSets, namespace, keepLabel string) (bool, error) {
	ksvcs, err := clients.ListKnativeServices(ctx, namespace)
	if err != nil {
		return false, errors.Errorf("unable to list knative services, err: %v", err)
	}
	if len(ksvcs.Items) != 0 {
		log.Debugf("[Status]: %d knative services left in %s", len(ksvcs.Items), namespace)
		return false, nil
	}

	selector, err := labels.Parse(keepLabel)
	if err != nil {
		return false, errors.Errorf("invalid label %q, err: %v", keepLabel, err)
	}
	podList, err := clients.ListPods(ctx, namespace, "")
	if err != nil {
		return false, errors.Errorf("unable to list the pods, err: %v", err)
	}
	for _, pod := range podList.Items {
		if !selector.Matches(labels.Set(pod.Labels)) {
			log.Debugf("[Status]: pod %s still present in %s", pod.Name, namespace)
			return false, nil
		}
	}
	return true, nil
}
