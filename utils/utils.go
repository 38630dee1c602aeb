package utils

import (
	"github.com/sirupsen/logrus"
)

// Pointer returns a pointer to the given value
func Pointer[T any](v T) *T {
	return &v
}

// LogEvent emits a structured event log line
func LogEvent(event string, fields map[string]interface{}) {
	logrus.WithFields(logrus.Fields(fields)).Info(event)
}
