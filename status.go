package txoutbox

// Status represents the lifecycle state of an outbox record.
type Status int16

const (
	// StatusPending indicates the record is ready for processing.
	StatusPending Status = 0
	// StatusProcessed indicates the record was processed successfully.
	StatusProcessed Status = 1
	// StatusQuarantined indicates the record reached max_attempts (or was
	// classified as a permanent failure) and is excluded from future
	// Fetch calls.
	StatusQuarantined Status = -1
)
