// Package id provides unique identifier generation for export jobs.
package id

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generate creates a new unique job ID.
// Format: export-<timestamp>-<random>
// Example: export-1701432000-a1b2c3d4
func Generate() string {
	timestamp := time.Now().Unix()
	u, err := uuid.NewRandom()
	if err != nil {
		// Fallback to a nanosecond timestamp if the random source fails
		return fmt.Sprintf("export-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("export-%d-%s", timestamp, hex.EncodeToString(u[:4]))
}
