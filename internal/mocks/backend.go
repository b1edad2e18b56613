package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/lumineer/alight"
	"github.com/lumineer/alight/address"
)

// MockBackend implements alight.Backend for fault injection across packages
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Stat(a address.Address) (alight.Artifacts, error) {
	args := m.Called(a)

	// Handle function return types (for complex tests)
	if fn, ok := args.Get(0).(func(address.Address) alight.Artifacts); ok {
		return fn(a), args.Error(1)
	}
	if args.Get(0) == nil {
		return alight.Artifacts{}, args.Error(1)
	}
	return args.Get(0).(alight.Artifacts), args.Error(1)
}

func (m *MockBackend) ArtifactKind(a address.Address) (alight.ArtifactKind, error) {
	args := m.Called(a)

	if fn, ok := args.Get(0).(func(address.Address) alight.ArtifactKind); ok {
		return fn(a), args.Error(1)
	}
	if args.Get(0) == nil {
		return alight.ArtifactNone, args.Error(1)
	}
	return args.Get(0).(alight.ArtifactKind), args.Error(1)
}

func (m *MockBackend) EnsureContainer(a address.Address) error {
	return m.Called(a).Error(0)
}

func (m *MockBackend) WriteLeaf(a address.Address, content string) error {
	return m.Called(a, content).Error(0)
}

func (m *MockBackend) ReadLeaf(a address.Address) (string, error) {
	args := m.Called(a)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) ListChildren(a address.Address) ([]string, error) {
	args := m.Called(a)

	if fn, ok := args.Get(0).(func(address.Address) []string); ok {
		return fn(a), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockBackend) Remove(a address.Address) error {
	return m.Called(a).Error(0)
}

func (m *MockBackend) RemoveArtifact(a address.Address, kind alight.ArtifactKind) error {
	return m.Called(a, kind).Error(0)
}

func (m *MockBackend) Close() error {
	return m.Called().Error(0)
}

var _ alight.Backend = (*MockBackend)(nil)
