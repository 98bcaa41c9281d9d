// Package mocks holds testify mocks of the adapter interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"lbcmut.dev/pkg/lbcmut/internal/adapter"
)

// MockOracle is a mock type for the Oracle type.
type MockOracle struct {
	mock.Mock
}

// MockOracle_Expecter offers typed expectations.
type MockOracle_Expecter struct {
	mock *mock.Mock
}

// EXPECT returns the typed expecter of the mock.
func (_m *MockOracle) EXPECT() *MockOracle_Expecter {
	return &MockOracle_Expecter{mock: &_m.Mock}
}

// Execute provides a mock function with given fields: ctx, candidate
func (_m *MockOracle) Execute(ctx context.Context, candidate adapter.Candidate) ([]string, error) {
	ret := _m.Called(ctx, candidate)

	if rf, ok := ret.Get(0).(func(context.Context, adapter.Candidate) ([]string, error)); ok {
		return rf(ctx, candidate)
	}

	var r0 []string
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]string)
	}

	return r0, ret.Error(1)
}

// MockOracle_Execute_Call wraps a *mock.Call for Execute.
type MockOracle_Execute_Call struct {
	*mock.Call
}

// Execute is a helper method to define mock.On call
//   - ctx context.Context
//   - candidate adapter.Candidate
func (_e *MockOracle_Expecter) Execute(ctx interface{}, candidate interface{}) *MockOracle_Execute_Call {
	return &MockOracle_Execute_Call{Call: _e.mock.On("Execute", ctx, candidate)}
}

// Return sets the values returned by the call.
func (_c *MockOracle_Execute_Call) Return(trace []string, err error) *MockOracle_Execute_Call {
	_c.Call.Return(trace, err)
	return _c
}

// RunAndReturn computes the returned values from the arguments.
func (_c *MockOracle_Execute_Call) RunAndReturn(run func(context.Context, adapter.Candidate) ([]string, error)) *MockOracle_Execute_Call {
	_c.Call.Return(run, nil)
	return _c
}

// NewMockOracle creates a new instance of MockOracle. It also registers a
// cleanup function to assert the mocks expectations.
func NewMockOracle(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockOracle {
	m := &MockOracle{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
