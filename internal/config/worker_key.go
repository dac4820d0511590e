package config

type WorkerKeyStruct struct {
	ExpiredAttemptsQueue string
	SweeperLock          string
}

var WorkerKey = &WorkerKeyStruct{
	ExpiredAttemptsQueue: "grade_expired_attempts_queue",
	SweeperLock:          "worker:attempt_sweeper:lock",
}
