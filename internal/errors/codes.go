package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnavailable     ErrorCode = "service_unavailable"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrMissingConfig   ErrorCode = "missing_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrAlreadyRunning ErrorCode = "already_running"

	// Registry errors
	ErrPumpNotFound    ErrorCode = "pump_not_found"
	ErrZoneNotFound    ErrorCode = "zone_not_found"
	ErrSystemNotFound  ErrorCode = "system_not_found"
	ErrAlarmNotFound   ErrorCode = "alarm_not_found"
	ErrDuplicateID     ErrorCode = "duplicate_id"
	ErrUnknownPumpRef  ErrorCode = "unknown_pump_reference"
	ErrUnknownMode     ErrorCode = "unknown_control_mode"
	ErrNoRedundantPair ErrorCode = "no_redundant_pair"

	// Control errors
	ErrInvalidTransition ErrorCode = "invalid_transition"
	ErrPumpFaulted       ErrorCode = "pump_faulted"
	ErrSpeedOutOfRange   ErrorCode = "speed_out_of_range"
	ErrCommandFailed     ErrorCode = "command_failed"
	ErrEmergencyActive   ErrorCode = "emergency_active"

	// Telemetry errors
	ErrInitTelemetry    ErrorCode = "init_telemetry_failed"
	ErrRecordTelemetry  ErrorCode = "record_telemetry_failed"
	ErrCloseTelemetry   ErrorCode = "close_telemetry_failed"
	ErrInvalidSnapshot  ErrorCode = "invalid_snapshot"
	ErrStorageInit      ErrorCode = "storage_init_failed"
	ErrStorageAccess    ErrorCode = "storage_access_failed"
	ErrInvalidDBPath    ErrorCode = "invalid_database_path"
	ErrOperationTimeout ErrorCode = "operation_timeout"

	// Bridge errors
	ErrBrokerConnect   ErrorCode = "broker_connect_failed"
	ErrBrokerPublish   ErrorCode = "broker_publish_failed"
	ErrBrokerSubscribe ErrorCode = "broker_subscribe_failed"
	ErrBadPayload      ErrorCode = "bad_payload"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:          "Internal error occurred",
	ErrInvalidArgument:   "Invalid argument provided",
	ErrUnavailable:       "Service unavailable",
	ErrInvalidConfig:     "Invalid configuration",
	ErrMissingConfig:     "Missing configuration",
	ErrBindFlags:         "Failed to bind flags",
	ErrReadConfig:        "Failed to read configuration",
	ErrInvalidInterval:   "Invalid interval value",
	ErrInvalidLogLevel:   "Invalid log level",
	ErrInitFailed:        "Initialization failed",
	ErrShutdownFailed:    "Shutdown failed",
	ErrAlreadyRunning:    "Process already running",
	ErrPumpNotFound:      "Pump not found",
	ErrZoneNotFound:      "Thermal zone not found",
	ErrSystemNotFound:    "Cooling system not found",
	ErrAlarmNotFound:     "Alarm not found",
	ErrDuplicateID:       "Identifier already registered",
	ErrUnknownPumpRef:    "Actuator references unknown pump",
	ErrUnknownMode:       "Unknown control mode",
	ErrNoRedundantPair:   "No redundant pump pair configured",
	ErrInvalidTransition: "Invalid state transition",
	ErrPumpFaulted:       "Pump is in fault state",
	ErrSpeedOutOfRange:   "Pump speed out of range",
	ErrCommandFailed:     "Actuator command failed",
	ErrEmergencyActive:   "Emergency cooling active",
	ErrInitTelemetry:     "Failed to initialize telemetry",
	ErrRecordTelemetry:   "Failed to record telemetry snapshot",
	ErrCloseTelemetry:    "Failed to close telemetry store",
	ErrInvalidSnapshot:   "Invalid telemetry snapshot",
	ErrStorageInit:       "Failed to initialize storage",
	ErrStorageAccess:     "Failed to access storage",
	ErrInvalidDBPath:     "Invalid database path",
	ErrOperationTimeout:  "Operation timed out",
	ErrBrokerConnect:     "Failed to connect to broker",
	ErrBrokerPublish:     "Failed to publish to broker",
	ErrBrokerSubscribe:   "Failed to subscribe to broker topic",
	ErrBadPayload:        "Malformed message payload",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
