// Package transporttest provides testify mocks of the transport contracts.
package transporttest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/compozy/remotequery/engine/transport"
)

// MockClient is a mock transport.Client.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Get(ctx context.Context, path string, params transport.Params) (*transport.Response, error) {
	args := m.Called(ctx, path, params)
	resp, _ := args.Get(0).(*transport.Response)
	return resp, args.Error(1)
}

func (m *MockClient) Post(ctx context.Context, path string, body transport.Record) (transport.Record, error) {
	args := m.Called(ctx, path, body)
	rec, _ := args.Get(0).(transport.Record)
	return rec, args.Error(1)
}

func (m *MockClient) Put(ctx context.Context, path string, body transport.Record) (transport.Record, error) {
	args := m.Called(ctx, path, body)
	rec, _ := args.Get(0).(transport.Record)
	return rec, args.Error(1)
}

func (m *MockClient) Delete(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

// MockRunner is a mock transport.Client that also implements transport.QueryRunner.
type MockRunner struct {
	MockClient
}

func (m *MockRunner) Run(ctx context.Context, sql string, args ...any) ([]transport.Record, error) {
	call := m.Called(ctx, sql, args)
	rows, _ := call.Get(0).([]transport.Record)
	return rows, call.Error(1)
}

// JSON builds a response from a literal body and panics on invalid input.
func JSON(body string) *transport.Response {
	resp, err := transport.NewResponse([]byte(body))
	if err != nil {
		panic(err)
	}
	return resp
}
