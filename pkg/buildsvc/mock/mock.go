package mock

import (
	"context"
	"testing"

	"github.com/tencentblueking/bkpaas-core/pkg/buildsvc"
)

type MockClient struct {
	t    *testing.T
	Impl struct {
		Submit func(ctx context.Context, req buildsvc.BuildRequest) (string, error)
		State  func(ctx context.Context, buildProcessID string) (buildsvc.BuildState, error)
		Events func(ctx context.Context, buildProcessID string, after int) ([]buildsvc.Event, error)
	}
}

var _ buildsvc.Client = &MockClient{}

func New(t *testing.T) *MockClient {
	return &MockClient{t: t}
}

func (m *MockClient) Submit(ctx context.Context, req buildsvc.BuildRequest) (string, error) {
	if m.Impl.Submit == nil {
		m.t.Fatal("Submit is not implemented")
	}
	return m.Impl.Submit(ctx, req)
}

func (m *MockClient) State(ctx context.Context, buildProcessID string) (buildsvc.BuildState, error) {
	if m.Impl.State == nil {
		m.t.Fatal("State is not implemented")
	}
	return m.Impl.State(ctx, buildProcessID)
}

func (m *MockClient) Events(ctx context.Context, buildProcessID string, after int) ([]buildsvc.Event, error) {
	if m.Impl.Events == nil {
		m.t.Fatal("Events is not implemented")
	}
	return m.Impl.Events(ctx, buildProcessID, after)
}
