package model

// LogEntry is one intercepted log line. Sequence is the id of the log
// event broadcast for it.
type LogEntry struct {
	Sequence int64  `json:"sequence"`
	Text     string `json:"text"`
	HTML     string `json:"html"`
}
