package gateway

// Message is a raw SMS observation reported by the gateway, before any
// filtering or deduplication. Timestamp is epoch milliseconds.
type Message struct {
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

// PermissionStatus reports whether the device has granted SMS access.
type PermissionStatus struct {
	ReceiveSMS        bool `json:"receiveSMS"`
	ReadSMS           bool `json:"readSMS"`
	HasAllPermissions bool `json:"hasAllPermissions"`
}

type recentMessagesResponse struct {
	Messages []Message `json:"messages"`
}
