package constants

// Common error messages
const (
	ErrInvalidSession     = "invalid user_id or session"
	ErrInvalidJSON        = "invalid json or missing fields"
	ErrMissingUserID      = "Missing or invalid user_id in body"
	ErrDB                 = "DB error"
	ErrInvalidRequestBody = "Invalid request body"
	ErrNoCompany          = "User has no active company membership"
	ErrNotAuthorized      = "Action requires an admin or owner role for this company"
	ErrPeriodLocked       = "Transaction date falls inside a locked or approved audit period"
	ErrMethodNotAllowed   = "Method Not Allowed"
	ErrPleaseLogin        = "Please login to continue."
)

// Content types
const (
	ContentTypeJSON   = "application/json"
	HeaderContentType = "Content-Type"
)

// Date formats
const (
	DateFormat     = "2006-01-02"
	DateTimeFormat = "2006-01-02 15:04:05"
)

// Audit log action verbs
const (
	ActionCreate  = "CREATE"
	ActionUpdate  = "UPDATE"
	ActionLock    = "LOCK"
	ActionUnlock  = "UNLOCK"
	ActionApprove = "APPROVE"
	ActionImport  = "IMPORT"
	ActionDelete  = "DELETE"
)
