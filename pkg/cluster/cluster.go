// Package cluster drives the Kubernetes cluster through kubectl, with an
// optional client-go path for readiness and drain checks.
package cluster

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/palantir/stacktrace"
	logrus "github.com/sirupsen/logrus"

	"github.com/tless/tless-bench/pkg/cerrors"
	"github.com/tless/tless-bench/pkg/clients"
	"github.com/tless/tless-bench/pkg/log"
	"github.com/tless/tless-bench/pkg/status"
	"github.com/tless/tless-bench/pkg/utils/exec"
	"github.com/tless/tless-bench/pkg/utils/retry"
)

const readyJSONPath = `jsonpath={..status.conditions[?(@.type=="Ready")].status}`

// Controller is the set of cluster operations the orchestrator needs
type Controller interface {
	Apply(ctx context.Context, manifest string) error
	Delete(ctx context.Context, manifest string) error
	ApplyFile(ctx context.Context, path string) error
	DeleteFile(ctx context.Context, path string) error
	Query(ctx context.Context, args ...string) (string, error)
	QueryRaw(ctx context.Context, rawCommand string) (string, error)
	WaitForPods(ctx context.Context, namespace, label string, expected int) error
	ServiceClusterIP(ctx context.Context, namespace, name string) (string, error)
	WaitForNamespaceDrained(ctx context.Context, namespace, keepLabel string) error
}

// Kubectl implements Controller on top of the kubectl binary
type Kubectl struct {
	Binary           string
	Runner           exec.CommandRunner
	PollInterval     time.Duration
	ReadinessTimeout time.Duration
	// Clients switches readiness to client-go and enables drain checks when set
	Clients *clients.ClientSets
}

// NewKubectl returns a controller for binary, failing when it does not exist
func NewKubectl(binary string, runner exec.CommandRunner, pollInterval, readinessTimeout time.Duration) (*Kubectl, error) {
	if _, err := os.Stat(binary); err != nil {
		return nil, cerrors.Configuration(fmt.Sprintf("kubectl not found at %s: %v", binary, err))
	}
	return &Kubectl{Binary: binary, Runner: runner, PollInterval: pollInterval, ReadinessTimeout: readinessTimeout}, nil
}

func (k *Kubectl) run(ctx context.Context, stdin string, args ...string) (string, error) {
	cmd := exec.Command{Name: k.Binary, Args: args}
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	log.Debugf("[Cluster]: running %s", cmd.String())
	out, err := k.Runner.Run(ctx, cmd)
	if err != nil {
		return out.Stdout, err
	}
	return out.Stdout, nil
}

func (k *Kubectl) wrap(ctx context.Context, err error, code cerrors.ErrorType, target, msg string) error {
	if ctx.Err() != nil {
		return stacktrace.Propagate(ctx.Err(), msg)
	}
	return stacktrace.Propagate(cerrors.Error{ErrorCode: code, Target: target, Reason: err.Error()}, msg)
}

// Apply applies the rendered manifest read from stdin
func (k *Kubectl) Apply(ctx context.Context, manifest string) error {
	if _, err := k.run(ctx, manifest, "apply", "-f", "-"); err != nil {
		return k.wrap(ctx, err, cerrors.ErrorTypeClusterApply, "stdin", "could not apply manifest")
	}
	return nil
}

// Delete deletes the objects of the rendered manifest and waits for their dependents
func (k *Kubectl) Delete(ctx context.Context, manifest string) error {
	if _, err := k.run(ctx, manifest, "delete", "--wait=true", "--cascade=foreground", "-f", "-"); err != nil {
		return k.wrap(ctx, err, cerrors.ErrorTypeClusterDelete, "stdin", "could not delete manifest")
	}
	return nil
}

// ApplyFile applies an on-disk manifest
func (k *Kubectl) ApplyFile(ctx context.Context, path string) error {
	if _, err := k.run(ctx, "", "apply", "-f", path); err != nil {
		return k.wrap(ctx, err, cerrors.ErrorTypeClusterApply, path, "could not apply manifest")
	}
	return nil
}

// DeleteFile deletes the objects of an on-disk manifest
func (k *Kubectl) DeleteFile(ctx context.Context, path string) error {
	if _, err := k.run(ctx, "", "delete", "--wait=true", "--cascade=foreground", "-f", path); err != nil {
		return k.wrap(ctx, err, cerrors.ErrorTypeClusterDelete, path, "could not delete manifest")
	}
	return nil
}

// Query runs a read-only kubectl command and returns its stdout
func (k *Kubectl) Query(ctx context.Context, args ...string) (string, error) {
	out, err := k.run(ctx, "", args...)
	if err != nil {
		return "", k.wrap(ctx, err, cerrors.ErrorTypeClusterQuery, strings.Join(args, " "), "could not query cluster")
	}
	return out, nil
}

// QueryRaw splits a command line on whitespace and runs it through Query
func (k *Kubectl) QueryRaw(ctx context.Context, rawCommand string) (string, error) {
	return k.Query(ctx, strings.Fields(rawCommand)...)
}

// ServiceClusterIP returns the cluster IP of a service
func (k *Kubectl) ServiceClusterIP(ctx context.Context, namespace, name string) (string, error) {
	if k.Clients != nil {
		svc, err := k.Clients.GetService(ctx, namespace, name)
		if err != nil {
			return "", k.wrap(ctx, err, cerrors.ErrorTypeClusterQuery, namespace+"/"+name, "could not discover service address")
		}
		return svc.Spec.ClusterIP, nil
	}
	out, err := k.Query(ctx, "-n", namespace, "get", "services",
		"-o", fmt.Sprintf(`jsonpath={.items[?(@.metadata.name=="%s")].spec.clusterIP}`, name))
	if err != nil {
		return "", err
	}
	ip := strings.Trim(strings.TrimSpace(out), "'")
	if ip == "" {
		return "", stacktrace.Propagate(cerrors.Error{ErrorCode: cerrors.ErrorTypeClusterQuery, Target: namespace + "/" + name, Reason: "service has no cluster IP"}, "could not discover service address")
	}
	return ip, nil
}

// readyStatuses returns the Ready condition of every pod matching label
func (k *Kubectl) readyStatuses(ctx context.Context, namespace, label string) ([]string, error) {
	out, err := k.Query(ctx, "-n", namespace, "get", "pods", "-l", label, "-o", readyJSONPath)
	if err != nil {
		return nil, err
	}
	return status.ParseReadyStatuses(out), nil
}

// WaitForPods blocks until exactly expected pods matching label are Ready.
// It waits one poll interval before the first check.
func (k *Kubectl) WaitForPods(ctx context.Context, namespace, label string, expected int) error {
	log.InfoWithValues("[Wait]: Waiting for pods to be ready", logrus.Fields{
		"Namespace": namespace, "Label": label, "Expected": expected})

	return retry.
		Wait(k.PollInterval).
		Timeout(k.ReadinessTimeout).
		Until(ctx, namespace+"/"+label, func(ctx context.Context) (bool, error) {
			if k.Clients != nil {
				ready, err := status.CheckPodsReady(ctx, *k.Clients, namespace, label, expected)
				if err != nil {
					return false, k.wrap(ctx, err, cerrors.ErrorTypeClusterQuery, label, "could not check pod readiness")
				}
				return ready, nil
			}
			values, err := k.readyStatuses(ctx, namespace, label)
			if err != nil {
				return false, err
			}
			if !status.AllReady(values, expected) {
				log.Debugf("[Wait]: waiting for pods to be ready, got %v", values)
				return false, nil
			}
			return true, nil
		})
}

// WaitForNamespaceDrained blocks until namespace holds only pods matching
// keepLabel and no Knative services. It is a no-op without client sets.
func (k *Kubectl) WaitForNamespaceDrained(ctx context.Context, namespace, keepLabel string) error {
	if k.Clients == nil {
		return nil
	}
	log.Infof("[Wait]: Waiting for namespace %s to drain", namespace)
	return retry.
		Wait(k.PollInterval).
		Timeout(k.ReadinessTimeout).
		Until(ctx, namespace, func(ctx context.Context) (bool, error) {
			drained, err := status.CheckNamespaceDrained(ctx, *k.Clients, namespace, keepLabel)
			if err != nil {
				return false, k.wrap(ctx, err, cerrors.ErrorTypeClusterQuery, namespace, "could not check namespace")
			}
			return drained, nil
		})
}

var _ Controller = (*Kubectl)(nil)
