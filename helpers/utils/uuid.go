package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateUUID returns a random (v4) UUID string.
func GenerateUUID() string {
	return uuid.New().String()
}

// GenerateJobID is a batch job identifier.
func GenerateJobID() string {
	return "job_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// IsJobID reports whether s has the shape GenerateJobID produces.
func IsJobID(s string) bool {
	rest, ok := strings.CutPrefix(s, "job_")
	if !ok || len(rest) != 32 {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
