package errors

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

const (
	ErrConfigNotFound    = "CONFIG_NOT_FOUND"
	ErrConfigParseFailed = "CONFIG_PARSE_FAILED"
	ErrConfigInvalid     = "CONFIG_INVALID"
	ErrConfigWriteFailed = "CONFIG_WRITE_FAILED"
)

// -----------------------------------------------------------------------------
// Stimuli
// -----------------------------------------------------------------------------

const (
	// ErrStimulusFolderMissing indicates a category/pair folder does not exist.
	ErrStimulusFolderMissing = "STIMULUS_FOLDER_MISSING"

	// ErrStimulusFolderEmpty indicates a pair folder holds no image files.
	ErrStimulusFolderEmpty = "STIMULUS_FOLDER_EMPTY"

	// ErrFeatureTableInvalid indicates the stimulus feature table could not be used.
	ErrFeatureTableInvalid = "FEATURE_TABLE_INVALID"
)

// -----------------------------------------------------------------------------
// Plan
// -----------------------------------------------------------------------------

const (
	// ErrPlanInvalidDesign indicates the factor design cannot fill the session.
	ErrPlanInvalidDesign = "PLAN_INVALID_DESIGN"
)

// -----------------------------------------------------------------------------
// Devices
// -----------------------------------------------------------------------------

const (
	ErrMarkerUnknownEvent = "MARKER_UNKNOWN_EVENT"
	ErrMarkerCodeInvalid  = "MARKER_CODE_INVALID"
	ErrDeviceUnavailable  = "DEVICE_UNAVAILABLE"

	// ErrEyeTrackerCalibration indicates calibration did not complete.
	ErrEyeTrackerCalibration = "EYETRACKER_CALIBRATION_FAILED"
)

// -----------------------------------------------------------------------------
// Session and IO
// -----------------------------------------------------------------------------

const (
	ErrSessionAborted        = "SESSION_ABORTED"
	ErrSessionCrashed        = "SESSION_CRASHED"
	ErrCheckpointWriteFailed = "CHECKPOINT_WRITE_FAILED"
	ErrCheckpointCorrupt     = "CHECKPOINT_CORRUPT"
	ErrExportFailed          = "EXPORT_FAILED"

	// ErrResultsDBUnavailable indicates the optional results database could
	// not be opened or written.
	ErrResultsDBUnavailable = "RESULTS_DB_UNAVAILABLE"
)
