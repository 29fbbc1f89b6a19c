package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a queued sequence in a transport-friendly format.
type Job struct {
	ID             int64    `json:"id"`
	AppName        string   `json:"appName"`
	Platform       string   `json:"platform,omitempty"`
	DeviceID       string   `json:"deviceId,omitempty"`
	Owner          string   `json:"owner,omitempty"`
	Status         string   `json:"status"`
	RemainingSteps []string `json:"remainingSteps"`
	StepsDone      int      `json:"stepsDone"`
	NextDueAt      string   `json:"nextDueAt,omitempty"`
	DelayMin       float64  `json:"delayMinHours"`
	DelayMax       float64  `json:"delayMaxHours"`
	LastStep       string   `json:"lastStep,omitempty"`
	LastResultCode int      `json:"lastResultCode,omitempty"`
	LastResultText string   `json:"lastResultText,omitempty"`
	CreatedAt      string   `json:"createdAt,omitempty"`
	UpdatedAt      string   `json:"updatedAt,omitempty"`
}

// QueueStatus summarizes queue contents.
type QueueStatus struct {
	Total        int            `json:"total"`
	Pending      int            `json:"pending"`
	Due          int            `json:"due"`
	Completed    int            `json:"completed"`
	StepsPending int            `json:"stepsPending"`
	NextDueAt    string         `json:"nextDueAt,omitempty"`
	ByStatus     map[string]int `json:"byStatus"`
}

// StepInput is one explicit step in a submission.
type StepInput struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

// SubmitRequest describes a new job. Either Steps or Events must be set;
// Events are resolved through the app catalog in the order given.
type SubmitRequest struct {
	AppName        string      `json:"appName"`
	Platform       string      `json:"platform"`
	DeviceID       string      `json:"deviceId"`
	AppToken       string      `json:"appToken,omitempty"`
	UseGet         *bool       `json:"useGet,omitempty"`
	Events         []string    `json:"events,omitempty"`
	Steps          []StepInput `json:"steps,omitempty"`
	StartInMinutes float64     `json:"startInMinutes,omitempty"`
	DelayMin       float64     `json:"delayMinHours"`
	DelayMax       float64     `json:"delayMaxHours"`
	Owner          string      `json:"owner,omitempty"`
}

// RemoveResult reports how many jobs a removal touched.
type RemoveResult struct {
	Removed int64 `json:"removed"`
}

// ScanSummary reports the outcome of one scan pass.
type ScanSummary struct {
	ScanID     string `json:"scanId"`
	Status     string `json:"status"`
	Processed  int    `json:"processed"`
	Due        int    `json:"due"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	FinishedAt string `json:"finishedAt,omitempty"`
}

// CatalogApp describes an app the catalog can resolve events for. Tokens stay
// out of the wire format.
type CatalogApp struct {
	Name   string   `json:"name"`
	Method string   `json:"method"`
	Events []string `json:"events"`
}

// DaemonStatus aggregates daemon runtime information.
type DaemonStatus struct {
	Running      bool         `json:"running"`
	PID          int          `json:"pid"`
	StartedAt    string       `json:"startedAt,omitempty"`
	PollInterval string       `json:"pollInterval"`
	LastScan     *ScanSummary `json:"lastScan,omitempty"`
	QueueDBPath  string       `json:"queueDbPath"`
	LockFilePath string       `json:"lockFilePath"`
	Queue        QueueStatus  `json:"queue"`
}
