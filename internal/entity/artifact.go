package entity

import "time"

type ArtifactKind string

const (
	ArtifactScreenshot ArtifactKind = "screenshot"
	ArtifactFrames     ArtifactKind = "frames"
	ArtifactConsoleLog ArtifactKind = "console_log"
	ArtifactNetworkLog ArtifactKind = "network_log"
	ArtifactReport     ArtifactKind = "report"
)

// Artifact is a file written during a run for later human inspection.
type Artifact struct {
	Kind      ArtifactKind `json:"kind"`
	Name      string       `json:"name"`
	Path      string       `json:"path"`
	Size      int64        `json:"size"`
	CreatedAt time.Time    `json:"created_at"`
}
