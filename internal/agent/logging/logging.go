// Package logging provides the agent's process logger: stdout, UTC
// timestamps, a fixed prefix. Same idiom as the coordinator's logger
// in cmd/coordinator/main.go, both grounded on the teacher's
// agent/internal/logging.New().
package logging

import (
	"log"
	"os"
)

func New() *log.Logger {
	return log.New(os.Stdout, "storm-agent ", log.LstdFlags|log.LUTC)
}
