package model

// CommandPayload is published to a drone's group (drone_{droneId}) to
// request execution of a task (spec §6).
type CommandPayload struct {
	CommandID  string  `json:"commandId"`
	Type       string  `json:"type"`
	Parameters Value   `json:"parameters"`
	Persona    Value   `json:"persona"`
	Session    Session `json:"session"`
	TimeoutSec int     `json:"timeoutSec"`
}

// QueryPayload is published to a drone's group to request a read-only query.
type QueryPayload struct {
	QueryID    string `json:"queryId"`
	Type       string `json:"type"`
	Parameters Value  `json:"parameters"`
}

// DroneRegistrationPayload is received from a drone announcing itself.
type DroneRegistrationPayload struct {
	DroneID            string   `json:"droneId"`
	Version            string   `json:"version"`
	StaticCapabilities []string `json:"staticCapabilities"`
}

// CommandResultPayload is received from a drone reporting success.
type CommandResultPayload struct {
	CommandID      string                   `json:"commandId"`
	Result         Value                    `json:"result"`
	Artifacts      []map[string]interface{} `json:"artifacts"`
	SessionLeaseID string                   `json:"sessionLeaseId,omitempty"`
	SessionState   Value                    `json:"sessionState,omitempty"`
}

// CommandErrorPayload is received from a drone reporting failure.
type CommandErrorPayload struct {
	CommandID string `json:"commandId"`
	Error     string `json:"error"`
	ErrorType string `json:"errorType"`
	CanRetry  bool   `json:"canRetry"`
}

// StatusPayload is received from a drone's periodic heartbeat/status report.
type StatusPayload struct {
	Status         DroneStatus `json:"status"`
	CurrentCommand string      `json:"currentCommand,omitempty"`
	Progress       float64     `json:"progress,omitempty"`
	MemoryUsage    float64     `json:"memoryUsage,omitempty"`
	CPUUsage       float64     `json:"cpuUsage,omitempty"`
}

// InterventionPayload is received from a drone requesting an intervention
// and is also the shape of the outbound RequireIntervention broadcast to the
// operators group.
type InterventionPayload struct {
	CommandID   string `json:"commandId"`
	DroneID     string `json:"droneId,omitempty"`
	Type        string `json:"type"`
	Reason      string `json:"reason,omitempty"`
	Data        Value  `json:"data,omitempty"`
	ResumeToken string `json:"resumeToken,omitempty"`
	RequestedAt string `json:"requestedAtUtc,omitempty"`
	Metadata    Value  `json:"metadata,omitempty"`
}

// QueryResponsePayload is received from a drone answering a QueryPayload.
type QueryResponsePayload struct {
	QueryID string `json:"queryId"`
	Result  Value  `json:"result"`
	Error   string `json:"error,omitempty"`
}

// DeadLetterCommand is published to the dead-letter sink for a command that
// could not make progress (spec §6).
type DeadLetterCommand struct {
	CommandID   string    `json:"commandId"`
	Reason      string    `json:"reason"`
	PersonaID   string    `json:"personaId,omitempty"`
	DroneID     string    `json:"droneId,omitempty"`
	RetryCount  int       `json:"retryCount"`
	FailedAtUTC string    `json:"failedAtUtc"`
	Metadata    Value     `json:"metadata,omitempty"`
}
