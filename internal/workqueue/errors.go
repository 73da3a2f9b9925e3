package workqueue

type ErrAlreadyRunning struct{}

func (ErrAlreadyRunning) Error() string {
	return "The work queue is already running."
}

type ErrNotRunning struct{}

func (ErrNotRunning) Error() string {
	return "The work queue is not running."
}

type ErrStillRunning struct{}

func (ErrStillRunning) Error() string {
	return "The work queue is still running and can not be destroyed."
}
