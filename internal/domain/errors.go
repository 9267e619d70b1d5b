package domain

import (
	"fmt"
	"strings"
)

// The three fatal failure classes. None of them is retried anywhere: a bad
// dataset or model artifact is fixed by redeploying correct artifacts, and a
// schema mismatch must never degrade into a silently wrong prediction.

// DataLoadError reports a missing, corrupt, or schema-incomplete dataset
// archive. Fatal at startup.
type DataLoadError struct {
	Path string
	Err  error
}

func (e *DataLoadError) Error() string {
	return fmt.Sprintf("load dataset %s: %v", e.Path, e.Err)
}

func (e *DataLoadError) Unwrap() error { return e.Err }

// ModelUnavailableError reports a model artifact or schema manifest that
// cannot be read or deserialized. Fatal at startup.
type ModelUnavailableError struct {
	Path string
	Err  error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model unavailable %s: %v", e.Path, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// FeatureMismatchError reports a feature row whose shape or ordering does not
// match the model's training-time schema. Raised instead of scoring: a
// mislabeled matrix would produce confidently wrong numbers.
type FeatureMismatchError struct {
	Want   []string
	Got    []string
	Reason string
}

func (e *FeatureMismatchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("feature mismatch: %s (want [%s], got [%s])",
			e.Reason, strings.Join(e.Want, " "), strings.Join(e.Got, " "))
	}
	return fmt.Sprintf("feature mismatch: want [%s], got [%s]",
		strings.Join(e.Want, " "), strings.Join(e.Got, " "))
}
