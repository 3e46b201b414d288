package xid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const offlinePrefix = "off-"

// New returns a time-ordered id such as "shf-0190f0c4-...". UUIDv7 keeps ids
// from the same process sortable by creation time.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + "-" + id.String()
}

// Offline returns the client-side id a device assigns to a sale captured
// without connectivity. The server keys idempotency on it.
func Offline(deviceID string) string {
	device := strings.TrimSpace(deviceID)
	if device == "" {
		device = "device"
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return fmt.Sprintf("%s%s-%s", offlinePrefix, device, id.String())
}

func IsOffline(id string) bool {
	return strings.HasPrefix(id, offlinePrefix)
}
