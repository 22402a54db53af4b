package downloader

import (
	"os"
	"strconv"

	"github.com/google/uuid"
)

// WorkerID returns configured when set, otherwise an identity unique to this
// process (hostname-pid-random) so fleet outcomes can be told apart.
func WorkerID(configured string) string {
	if configured != "" {
		return configured
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}

	return host + "-" + strconv.Itoa(os.Getpid()) + "-" + uuid.New().String()[:8]
}
