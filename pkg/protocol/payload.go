package protocol

// Payload is implemented by every typed message body. The message type of
// an outgoing envelope is always derived from its payload, so a request
// cannot be sent under the wrong type.
type Payload interface {
	MessageType() string
}

// TimeRequest asks for the server's wall clock.
type TimeRequest struct{}

func (TimeRequest) MessageType() string { return TypeTimeRequest }

type TimeResponse struct {
	Time string `json:"time"`
}

func (TimeResponse) MessageType() string { return TypeTimeRequest }

// DownloadLogRequest asks for the full log history.
type DownloadLogRequest struct{}

func (DownloadLogRequest) MessageType() string { return TypeDownloadLog }

type DownloadLogResponse struct {
	FileName string `json:"fileName"`
	Content  string `json:"content"`
}

func (DownloadLogResponse) MessageType() string { return TypeDownloadLog }

type GetEnvValuesRequest struct{}

func (GetEnvValuesRequest) MessageType() string { return TypeGetEnvValues }

type GetEnvValuesResponse struct {
	Values map[string]string `json:"values"`
}

func (GetEnvValuesResponse) MessageType() string { return TypeGetEnvValues }

type SetEnvValueRequest struct {
	Key   string `json:"key" validate:"required,max=256"`
	Value string `json:"value"`
}

func (SetEnvValueRequest) MessageType() string { return TypeSetEnvValue }

type SetEnvValueResponse struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Success bool   `json:"success"`
}

func (SetEnvValueResponse) MessageType() string { return TypeSetEnvValue }

// StartProcessRequest starts the simulated process job.
type StartProcessRequest struct{}

func (StartProcessRequest) MessageType() string { return TypeStartProcess }

type InstallAssetRequest struct {
	Asset string `json:"asset" validate:"required"`
}

func (InstallAssetRequest) MessageType() string { return TypeInstallAsset }

type InstallPatchRequest struct {
	Patch string `json:"patch" validate:"required"`
}

func (InstallPatchRequest) MessageType() string { return TypeInstallPatch }

// JobStarted is the immediate answer to every job-starting request. Its
// JobID is the join key for the jobProgress and jobComplete events that follow.
type JobStarted struct {
	Type     string `json:"-"`
	JobID    int64  `json:"jobId"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

func (p JobStarted) MessageType() string { return p.Type }

type JobStatusRequest struct {
	JobID int64 `json:"jobId" validate:"required,min=1"`
}

func (JobStatusRequest) MessageType() string { return TypeJobStatus }

type JobStatusResponse struct {
	JobID    int64  `json:"jobId"`
	Kind     string `json:"kind"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

func (JobStatusResponse) MessageType() string { return TypeJobStatus }

type TestRequest struct {
	Message string `json:"message,omitempty"`
}

func (TestRequest) MessageType() string { return TypeTest }

type TestResponse struct {
	Message string `json:"message"`
	Echo    string `json:"echo,omitempty"`
}

func (TestResponse) MessageType() string { return TypeTest }

type RestartServerRequest struct{}

func (RestartServerRequest) MessageType() string { return TypeRestartServer }

type ShutdownServerRequest struct{}

func (ShutdownServerRequest) MessageType() string { return TypeShutdownServer }

// ServerStatus answers restartServer and shutdownServer.
type ServerStatus struct {
	Type   string `json:"-"`
	Status string `json:"status"`
}

func (p ServerStatus) MessageType() string { return p.Type }

type GetUserAccountsRequest struct{}

func (GetUserAccountsRequest) MessageType() string { return TypeGetUserAccounts }

type Account struct {
	ID    string `json:"id" mapstructure:"id"`
	Name  string `json:"name" mapstructure:"name"`
	Email string `json:"email,omitempty" mapstructure:"email"`
}

type GetUserAccountsResponse struct {
	Accounts []Account `json:"accounts"`
}

func (GetUserAccountsResponse) MessageType() string { return TypeGetUserAccounts }

type GetSecretRequest struct {
	Name string `json:"name" validate:"required"`
}

func (GetSecretRequest) MessageType() string { return TypeGetSecret }

type GetSecretResponse struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (GetSecretResponse) MessageType() string { return TypeGetSecret }

type SwitchDeviceRequest struct {
	Device string `json:"device" validate:"required"`
}

func (SwitchDeviceRequest) MessageType() string { return TypeSwitchDevice }

type SwitchDeviceResponse struct {
	Device   string `json:"device"`
	Previous string `json:"previous"`
}

func (SwitchDeviceResponse) MessageType() string { return TypeSwitchDevice }

// ErrorPayload is the body of the catch-all error type.
type ErrorPayload struct {
	Message string `json:"message"`
}

func (ErrorPayload) MessageType() string { return TypeError }

// LogEvent is pushed for every intercepted server log line.
type LogEvent struct {
	Text string `json:"text"`
	HTML string `json:"html"`
}

func (LogEvent) MessageType() string { return TypeLog }

type JobProgress struct {
	JobID    int64  `json:"jobId"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

func (JobProgress) MessageType() string { return TypeJobProgress }

type JobComplete struct {
	JobID    int64  `json:"jobId"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

func (JobComplete) MessageType() string { return TypeJobComplete }
