// Package testing provides testing utilities for code built on the
// modelstudio client.
//
// # Mocks
//
// The mocks subpackage provides testify-based mock implementations of the
// client interfaces, such as httpclient.Client, so the retry loop can be
// driven attempt by attempt without a server.
//
// # Fixtures
//
// The fixtures subpackage provides a scripted prediction server built on
// httptest, sample image files and recording sleepers for asserting
// backoff schedules.
//
//	import (
//		"github.com/modelstudio/modelstudio-go/testing/fixtures"
//		"github.com/modelstudio/modelstudio-go/testing/mocks"
//	)
package testing
