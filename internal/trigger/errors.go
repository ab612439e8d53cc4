package trigger

import (
	"fmt"
	"strings"
)

// ConfigError reports configuration that prevents building a job. It is
// always returned before any remote call is made.
type ConfigError struct {
	Fields []string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		if len(e.Fields) == 0 {
			return fmt.Sprintf("invalid configuration: %v", e.Err)
		}
		return fmt.Sprintf("invalid configuration %s: %v", strings.Join(e.Fields, ", "), e.Err)
	}
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Fields, ", "))
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// SubmissionError wraps any failure while initializing the platform client,
// verifying the staging location, or submitting the job.
type SubmissionError struct {
	DisplayName string
	Err         error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("failed to launch training job %s: %v", e.DisplayName, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
