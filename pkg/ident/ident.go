package ident

import (
	"os"

	"github.com/denisbrodbeck/machineid"
)

// InstanceID returns a stable identifier for this host, used to tag registry
// rows so operators can tell which process wrote them. Falls back to the
// hostname when the machine ID is unavailable (e.g. restricted containers).
func InstanceID() string {
	if id, err := machineid.ProtectedID("engine-core"); err == nil {
		return id
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}
