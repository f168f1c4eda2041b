package models

// Message is one ingested SMS observation together with its upload state.
// Timestamps are epoch milliseconds as reported by the source.
type Message struct {
	ID             string `json:"id"`
	Sender         string `json:"sender"`
	Body           string `json:"body"`
	Timestamp      int64  `json:"timestamp"`
	Uploaded       bool   `json:"uploaded"`
	UploadAttempts int    `json:"uploadAttempts"`
}

// UploadLog records a single upload attempt, independent of the message record.
type UploadLog struct {
	ID        string `json:"id"`
	MessageID string `json:"messageId"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// UploadResult is the outcome of one delivery attempt. Failures are carried
// as values, never as panics or errors escaping the upload boundary.
type UploadResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SyncResult summarizes a sync or retry sweep. Ingested is only populated by
// sweeps that include a bulk scan.
type SyncResult struct {
	Ingested int `json:"ingested"`
	Uploaded int `json:"uploaded"`
	Failed   int `json:"failed"`
}
