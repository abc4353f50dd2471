package domain

import "fmt"

// EngineError is the unified error type for the engine.
// Each error has a numeric code and human-readable message.
type EngineError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// Is matches any EngineError carrying the same code, so wrapped and
// re-messaged errors still compare against the sentinels below.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	return ok && t.Code == e.Code
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(code int, msg string, cause error) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// ---- Run / validation errors (-21010 to -21039) ----

var (
	ErrMissingMapConstraint   = &EngineError{Code: -21010, Message: "no map constraint in run"}
	ErrMultipleMapConstraints = &EngineError{Code: -21011, Message: "more than one map constraint in run"}
	ErrInvalidSource          = &EngineError{Code: -21012, Message: "source layer is not valid"}
	ErrInvalidTransition      = &EngineError{Code: -21013, Message: "invalid run state transition"}
	ErrRunNotFound            = &EngineError{Code: -21014, Message: "run not found"}
	ErrRunCancelled           = &EngineError{Code: -21015, Message: "run cancelled"}
	ErrOptimisticLock         = &EngineError{Code: -21016, Message: "optimistic lock conflict: state was modified concurrently"}
	ErrUnknownKind            = &EngineError{Code: -21017, Message: "unknown constraint kind"}
	ErrDuplicateRun           = &EngineError{Code: -21018, Message: "run already exists"}
)

// ---- Raster op errors (-21040 to -21069) ----

var (
	ErrExternalOpFailure = &EngineError{Code: -21040, Message: "raster operation failed"}
	ErrOpParams          = &EngineError{Code: -21041, Message: "invalid operation parameters"}
	ErrGridMismatch      = &EngineError{Code: -21042, Message: "rasters have different grids"}
	ErrCodecFormat       = &EngineError{Code: -21043, Message: "malformed raster or vector file"}
)

// ---- Publication errors (-21070 to -21099) ----

var (
	ErrCopyFailure = &EngineError{Code: -21070, Message: "copying result to durable storage failed"}
)

// ---- Store / Config errors (-21100 to -21129) ----

var (
	ErrStoreInit          = &EngineError{Code: -21100, Message: "failed to initialize store"}
	ErrStoreQuery         = &EngineError{Code: -21101, Message: "store query failed"}
	ErrStoreWrite         = &EngineError{Code: -21102, Message: "store write failed"}
	ErrProjectNotFound    = &EngineError{Code: -21103, Message: "project not found"}
	ErrConstraintNotFound = &EngineError{Code: -21104, Message: "constraint not found"}
	ErrDuplicateProject   = &EngineError{Code: -21105, Message: "project already exists"}
	ErrConfigInvalid      = &EngineError{Code: -21106, Message: "invalid configuration"}
)
