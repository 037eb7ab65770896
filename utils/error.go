package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrorForbidden marks role failures: admin-only or requester-only actions.
var ErrorForbidden = errors.New("forbidden")

// ErrorConflict marks unique-constraint violations (duplicate request for the
// same record, second active rental, duplicate notification tuple).
var ErrorConflict = errors.New("conflict")

// ErrorTimeout marks an exceeded operation deadline. The transaction has been
// rolled back.
var ErrorTimeout = errors.New("operation deadline exceeded")

// ErrorStorageUnavailable marks a transient store failure that survived the
// engine's retries. Callers may retry the whole command.
var ErrorStorageUnavailable = errors.New("storage unavailable")
