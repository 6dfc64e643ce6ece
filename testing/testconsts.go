package testing

// Logger levels used across test files.
const (
	TestLoggerLevelDebug    = "debug"
	TestLoggerLevelDisabled = "disabled"
)

// Prediction inputs shared by tests.
const (
	TestAPIKey = "test-api-key"
	// TestImageData encodes to TestImageB64.
	TestImageData = "fake_image_data"
	TestImageB64  = "ZmFrZV9pbWFnZV9kYXRh"
	TestURL       = "http://predict.invalid/v1/predict"
)
