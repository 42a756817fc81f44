package constants

// TriggerType records what started a scan run.
type TriggerType string

const (
	TriggerInteractive TriggerType = "interactive"
	TriggerUnattended  TriggerType = "unattended"
	TriggerPush        TriggerType = "push"
	TriggerManual      TriggerType = "manual"
)

// RunStatus is how an orchestrator run ended. Stored verbatim in processing_logs.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunTimedOut  RunStatus = "timed_out" // time budget hit, remaining messages left for the next run
	RunAborted   RunStatus = "aborted"   // window or fetch failed before any batch ran
)
