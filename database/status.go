package database

// Task status values shared by archive generation and import bookkeeping.
const (
	StatusNotRequired = "notRequired"
	StatusPending     = "pending"
	StatusProcessing  = "processing"
	StatusDone        = "done"
	StatusError       = "error"
)
