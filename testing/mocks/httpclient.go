package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/modelstudio/modelstudio-go/httpclient"
)

// MockHTTPClient provides a testify-based mock implementation of httpclient.Client.
//
// Example usage:
//
//	client := &mocks.MockHTTPClient{}
//	client.ExpectError(httpclient.NewTimeoutError("slow", 10*time.Second))
//	client.ExpectSuccess(`{"label":"cat"}`)
//
//	p, _ := predictor.New(cfg, predictor.WithHTTPClient(client))
type MockHTTPClient struct {
	mock.Mock
}

var _ httpclient.Client = (*MockHTTPClient)(nil)

// Post implements httpclient.Client
func (m *MockHTTPClient) Post(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	arguments := m.Called(ctx, req)
	if arguments.Get(0) == nil {
		return nil, arguments.Error(1)
	}
	return arguments.Get(0).(*httpclient.Response), arguments.Error(1)
}

// Do implements httpclient.Client
func (m *MockHTTPClient) Do(ctx context.Context, method string, req *httpclient.Request) (*httpclient.Response, error) {
	arguments := m.Called(ctx, method, req)
	if arguments.Get(0) == nil {
		return nil, arguments.Error(1)
	}
	return arguments.Get(0).(*httpclient.Response), arguments.Error(1)
}

// ExpectSuccess queues one 200 response carrying body.
func (m *MockHTTPClient) ExpectSuccess(body string) *mock.Call {
	return m.On("Post", mock.Anything, mock.Anything).
		Return(&httpclient.Response{StatusCode: 200, Body: []byte(body)}, nil).Once()
}

// ExpectError queues one failed attempt returning err.
func (m *MockHTTPClient) ExpectError(err error) *mock.Call {
	return m.On("Post", mock.Anything, mock.Anything).Return(nil, err).Once()
}

// PostedRequests returns the requests passed to Post in call order.
func (m *MockHTTPClient) PostedRequests() []*httpclient.Request {
	var reqs []*httpclient.Request
	for _, call := range m.Calls {
		if call.Method != "Post" {
			continue
		}
		if req, ok := call.Arguments.Get(1).(*httpclient.Request); ok {
			reqs = append(reqs, req)
		}
	}
	return reqs
}
