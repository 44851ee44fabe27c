package entity

type AgentStatus string

const (
	AgentStatusPending   AgentStatus = "pending"
	AgentStatusRunning   AgentStatus = "running"
	AgentStatusCompleted AgentStatus = "completed"
	AgentStatusFailed    AgentStatus = "failed"
	AgentStatusStopped   AgentStatus = "stopped"
)

// Terminal reports whether the status is final.
func (s AgentStatus) Terminal() bool {
	return s == AgentStatusCompleted || s == AgentStatusFailed || s == AgentStatusStopped
}

// Agent is a simulated background task spawned in the product under test.
// Tracked only long enough to poll or stop it.
type Agent struct {
	ID     string
	Status AgentStatus
	Task   string
	Type   string
}

type PreviewStatus string

const (
	PreviewStatusCreating PreviewStatus = "creating"
	PreviewStatusReady    PreviewStatus = "ready"
	PreviewStatusFailed   PreviewStatus = "failed"
)

// Preview is a live container-served rendering exposed via a proxy route.
type Preview struct {
	ID     string
	Status PreviewStatus
	URL    string
}
