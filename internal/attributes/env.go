package attributes

// TaskEnv is what custom attribute expressions see for one task timeline.
type TaskEnv struct {
	TaskID      uint32
	TaskName    string
	BusyTicks   uint64
	Utilization float64
	Intervals   int
	Markers     int
	// Env holds the host environment variables of the exporting process.
	Env map[string]string
}

func (e *TaskEnv) vars() map[string]interface{} {
	return map[string]interface{}{
		"task_id":     int(e.TaskID),
		"task_name":   e.TaskName,
		"busy_ticks":  int(e.BusyTicks),
		"utilization": e.Utilization,
		"intervals":   e.Intervals,
		"markers":     e.Markers,
		"env":         nonNil(e.Env),
	}
}

var taskEnvTypes = (&TaskEnv{}).vars()

// SessionEnv is what trace-id and parent-id expressions see.
type SessionEnv struct {
	ID       string
	Source   string
	ExitCode int32
	Finished bool
	Env      map[string]string
}

func (e *SessionEnv) vars() map[string]interface{} {
	return map[string]interface{}{
		"session_id": e.ID,
		"source":     e.Source,
		"exit_code":  int(e.ExitCode),
		"finished":   e.Finished,
		"env":        nonNil(e.Env),
	}
}

var sessionEnvTypes = (&SessionEnv{}).vars()

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
