package apierrors_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/tencentblueking/bkpaas-core/pkg/api/apierrors"
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
)

func TestFrom(t *testing.T) {
	theory := func(err error, wantStatus int, wantCode string) func(*testing.T) {
		return func(t *testing.T) {
			he := apierrors.From(err)
			if he.Code != wantStatus {
				t.Errorf("unexpected status: (actual, expected) = (%d, %d)", he.Code, wantStatus)
			}
			body, ok := he.Message.(apierrors.ErrorResponse)
			if !ok {
				t.Fatalf("unexpected body: %+v", he.Message)
			}
			if body.Code != wantCode {
				t.Errorf("unexpected code: (actual, expected) = (%s, %s)", body.Code, wantCode)
			}
		}
	}

	t.Run("validation errors are 400", theory(
		domain.NewValidation("spec.processes", "duplicate process name"),
		http.StatusBadRequest, "VALIDATION_ERROR",
	))
	t.Run("not-found errors are 404", theory(
		domain.ErrDeploymentNotFound, http.StatusNotFound, "DEPLOYMENT_NOT_FOUND",
	))
	t.Run("precondition errors are 409", theory(
		domain.ErrCannotDeployOngoingExists, http.StatusConflict, "CANNOT_DEPLOY_ONGOING_EXISTS",
	))
	t.Run("external errors are 502", theory(
		domain.NewExternal("BUILD_SERVICE_ERROR", "build service returned 500", nil),
		http.StatusBadGateway, "BUILD_SERVICE_ERROR",
	))
	t.Run("unrecognized errors are 500", theory(
		errors.New("broken pipe"), http.StatusInternalServerError, "INTERNAL",
	))

	t.Run("domain errors survive wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("resolving target: %w", domain.ErrProcessNotFound)
		if he := apierrors.From(wrapped); he.Code != http.StatusNotFound {
			t.Errorf("unexpected status: %d", he.Code)
		}
	})

	t.Run("the field of a validation error is carried over", func(t *testing.T) {
		he := apierrors.From(domain.NewValidation("version_info.version_type", "bad type"))
		body := he.Message.(apierrors.ErrorResponse)
		if body.Field != "version_info.version_type" {
			t.Errorf("unexpected field: %s", body.Field)
		}
	})
}
