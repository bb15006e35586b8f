package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Capture pipeline errors
	ErrCaptureSource  ErrorCode = "capture_source_failed"
	ErrResourceLoad   ErrorCode = "resource_load_failed"
	ErrSensorRead     ErrorCode = "sensor_read_failed"
	ErrMalformedFrame ErrorCode = "malformed_frame"
	ErrEncode         ErrorCode = "encode_failed"
	ErrNotReady       ErrorCode = "not_ready"

	// Persistence errors
	ErrPersist ErrorCode = "persist_failed"

	// Operation errors
	ErrOperationFailed ErrorCode = "operation_failed"
	ErrTimeout         ErrorCode = "operation_timeout"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:        "Internal error occurred",
	ErrInvalidArgument: "Invalid argument provided",
	ErrAlreadyRunning:  "Another instance is already running",
	ErrInvalidConfig:   "Invalid configuration",
	ErrReadConfig:      "Failed to read configuration",
	ErrInvalidInterval: "Invalid interval value",
	ErrInvalidLogLevel: "Invalid log level",
	ErrInitFailed:      "Initialization failed",
	ErrShutdownFailed:  "Shutdown failed",
	ErrCaptureSource:   "Failed to acquire frame from capture source",
	ErrResourceLoad:    "Failed to load overlay resources",
	ErrSensorRead:      "Failed to read sensor",
	ErrMalformedFrame:  "Raw frame is shorter than its declared dimensions",
	ErrEncode:          "Failed to encode image",
	ErrNotReady:        "Image not ready yet.",
	ErrPersist:         "Failed to persist capture",
	ErrOperationFailed: "Operation failed",
	ErrTimeout:         "Operation timed out",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
