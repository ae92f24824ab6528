// Package cmd provides common initialization for the command-line binaries.
package cmd

import (
	"fmt"
	"strings"

	"github.com/billhawk/billhawk/pkg/persistence"
	"github.com/billhawk/billhawk/pkg/persistence/file"
	"github.com/billhawk/billhawk/pkg/persistence/redis"
)

// NewPersistence picks the record-store driver by URL scheme. file:// is the
// default for bare paths.
func NewPersistence(databaseURL string) (persistence.Persistence, error) {
	switch parseProvider(databaseURL) {
	case "redis", "rediss":
		return redis.NewPersistence(databaseURL)
	case "file":
		return file.NewPersistence(databaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported persistence provider in %q", databaseURL)
	}
}

func parseProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return scheme
}
