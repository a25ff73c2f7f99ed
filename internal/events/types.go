package events

// Event types published by the supervisor.
const (
	WorkerStarted     = "worker.started"
	WorkerExited      = "worker.exited"
	WorkerStderr      = "worker.stderr"
	WorkerSpawnFailed = "worker.spawn_failed"
	WorkerRestarting  = "worker.restarting"
	FrameUnmatched    = "frame.unmatched"
	FrameMalformed    = "frame.malformed"
	FoldersChanged    = "folders.changed"
	ScanCompleted     = "scan.completed"
)

const defaultSubscriberBuffer = 128
