// Package backendtest provides a testify mock of backend.Backend.
package backendtest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/backend"
)

// MockBackend implements backend.Backend for testing.
type MockBackend struct {
	mock.Mock
}

var _ backend.Backend = (*MockBackend)(nil)

func (m *MockBackend) Load(ctx context.Context, model string, task backend.Task) (backend.ModelRef, error) {
	args := m.Called(ctx, model, task)
	return args.Get(0).(backend.ModelRef), args.Error(1)
}

func (m *MockBackend) Infer(ctx context.Context, ref backend.ModelRef, batch []string, params backend.Params) ([]backend.Output, error) {
	args := m.Called(ctx, ref, batch, params)
	if fn, ok := args.Get(0).(func([]string) []backend.Output); ok {
		return fn(batch), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]backend.Output), args.Error(1)
}

func (m *MockBackend) Unload(ctx context.Context, ref backend.ModelRef) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

// Repeat returns an Infer result that answers every input with out.
func Repeat(out backend.Output) func([]string) []backend.Output {
	return func(batch []string) []backend.Output {
		outs := make([]backend.Output, len(batch))
		for i := range outs {
			outs[i] = out
		}
		return outs
	}
}
