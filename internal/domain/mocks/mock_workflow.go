// Package mocks holds testify mocks of the domain interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"lbcmut.dev/pkg/lbcmut/internal/domain"
	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

// MockWorkflow is a mock type for the Workflow type.
type MockWorkflow struct {
	mock.Mock
}

// Run provides a mock function with given fields: ctx, args
func (_m *MockWorkflow) Run(ctx context.Context, args domain.RunArgs) (m.Manifest, error) {
	ret := _m.Called(ctx, args)

	var r0 m.Manifest
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(m.Manifest)
	}

	return r0, ret.Error(1)
}

// Disassemble provides a mock function with given fields: ctx, path
func (_m *MockWorkflow) Disassemble(ctx context.Context, path m.Path) error {
	ret := _m.Called(ctx, path)
	return ret.Error(0)
}

// View provides a mock function with given fields: ctx
func (_m *MockWorkflow) View(ctx context.Context) error {
	ret := _m.Called(ctx)
	return ret.Error(0)
}

// Diff provides a mock function with given fields: ctx, args
func (_m *MockWorkflow) Diff(ctx context.Context, args domain.DiffArgs) error {
	ret := _m.Called(ctx, args)
	return ret.Error(0)
}

// NewMockWorkflow creates a new instance of MockWorkflow. It also registers a
// cleanup function to assert the mocks expectations.
func NewMockWorkflow(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockWorkflow {
	mock := &MockWorkflow{}
	mock.Mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
