// Package manifestwriter applies BkApp manifests to target clusters.
package manifestwriter

import (
	"context"
	"encoding/json"
	"log"
	"time"

	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	xe "github.com/tencentblueking/bkpaas-core/pkg/errors"
	"github.com/tencentblueking/bkpaas-core/pkg/utils/retry"
)

// FieldManager identifies this writer to the API server's field tracking.
const FieldManager = "paas-apiserver"

const applyAttempts = 3

// Writer applies a manifest idempotently and reads back BkApp status.
type Writer interface {
	// Apply upserts the manifest into the namespace. Server-side apply
	// when available, get-then-patch otherwise.
	Apply(ctx context.Context, namespace string, manifest map[string]any) error

	// StatusPhase reads .status.phase of the named BkApp. Empty string
	// when the resource or the field is absent.
	StatusPhase(ctx context.Context, namespace string, name string) (string, error)
}

type writer struct {
	client dynamic.Interface
	gvr    schema.GroupVersionResource
	logger *log.Logger

	// fresh backoff per Apply; replaced in tests.
	newBackoff func() retry.Backoff

	// flipped after the server rejects an SSA patch as unsupported.
	noSSA bool
}

func New(client dynamic.Interface, gvr schema.GroupVersionResource, logger *log.Logger) Writer {
	return &writer{
		client: client,
		gvr:    gvr,
		logger: logger,
		newBackoff: func() retry.Backoff {
			return retry.ExponentialBackoff(1*time.Second, 2)
		},
	}
}

func (w *writer) Apply(ctx context.Context, namespace string, manifest map[string]any) error {
	obj := &unstructured.Unstructured{Object: manifest}
	name := obj.GetName()

	backoff := w.newBackoff()
	var lastErr error
	for attempt := 0; attempt < applyAttempts; attempt++ {
		if attempt > 0 {
			if err := backoff(ctx); err != nil {
				return err
			}
		}

		err := w.applyOnce(ctx, namespace, name, obj)
		if err == nil {
			return nil
		}
		if !transient(err) {
			return classify(err)
		}
		w.logger.Printf("apply of BkApp %s/%s failed transiently (attempt %d): %s", namespace, name, attempt+1, err)
		lastErr = err
	}
	return classify(lastErr)
}

func (w *writer) applyOnce(
	ctx context.Context, namespace string, name string, obj *unstructured.Unstructured,
) error {
	resource := w.client.Resource(w.gvr).Namespace(namespace)

	if !w.noSSA {
		raw, err := json.Marshal(obj.Object)
		if err != nil {
			return err
		}
		_, err = resource.Patch(
			ctx, name, types.ApplyPatchType, raw,
			metav1.PatchOptions{FieldManager: FieldManager, Force: pointerTo(false)},
		)
		if err == nil {
			return nil
		}
		if !ssaUnsupported(err) {
			return err
		}
		w.noSSA = true
		w.logger.Printf("cluster does not support server-side apply, falling back to get-then-patch")
	}

	current, err := resource.Get(ctx, name, metav1.GetOptions{})
	if k8serrors.IsNotFound(err) {
		_, err := resource.Create(ctx, obj, metav1.CreateOptions{FieldManager: FieldManager})
		return err
	}
	if err != nil {
		return err
	}

	merged := obj.DeepCopy()
	merged.SetResourceVersion(current.GetResourceVersion())
	raw, err := json.Marshal(merged.Object)
	if err != nil {
		return err
	}
	_, err = resource.Patch(
		ctx, name, types.MergePatchType, raw,
		metav1.PatchOptions{FieldManager: FieldManager},
	)
	return err
}

func (w *writer) StatusPhase(ctx context.Context, namespace string, name string) (string, error) {
	obj, err := w.client.Resource(w.gvr).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if k8serrors.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", xe.Wrap(err)
	}
	phase, _, err := unstructured.NestedString(obj.Object, "status", "phase")
	if err != nil {
		return "", xe.Wrap(err)
	}
	return phase, nil
}

func transient(err error) bool {
	return k8serrors.IsServerTimeout(err) || k8serrors.IsServiceUnavailable(err) || k8serrors.IsTimeout(err)
}

// ssaUnsupported detects the older API servers which reject the apply
// patch type outright.
func ssaUnsupported(err error) bool {
	return k8serrors.IsBadRequest(err) || k8serrors.IsMethodNotSupported(err) ||
		k8serrors.IsUnsupportedMediaType(err)
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	status, ok := err.(k8serrors.APIStatus)
	if !ok {
		return xe.Wrap(err)
	}
	switch {
	case k8serrors.IsConflict(err):
		field := conflictingField(status)
		return &domain.Error{
			Kind: domain.KindPrecondition, Code: "MANIFEST_FIELD_CONFLICT",
			Field:    field,
			Message:  "another manager owns a field this deployment writes",
			CausedBy: err,
		}
	case k8serrors.IsInvalid(err):
		return &domain.Error{
			Kind: domain.KindValidation, Code: "MANIFEST_INVALID",
			Message:  status.Status().Message,
			CausedBy: err,
		}
	default:
		return domain.NewExternal("MANIFEST_APPLY_FAILED", status.Status().Message, err)
	}
}

func conflictingField(status k8serrors.APIStatus) string {
	details := status.Status().Details
	if details == nil || len(details.Causes) == 0 {
		return ""
	}
	return details.Causes[0].Field
}

func pointerTo[T any](v T) *T {
	return &v
}
