// Package auth gates automation runs on a per-device allowlist. A device
// derives a stable token from its hardware identity; the registry stores
// which tokens are allowed to run, and access can be revoked without
// touching the device.
package auth

import (
	"fmt"
	"hash/fnv"
	"os"
	"runtime"
)

// DeviceName identifies the machine in the registry. Hostname is enough:
// the token, not the name, is what access checks key on.
func DeviceName() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}

// DeviceToken derives a stable identifier from hardware facts that do not
// change across reboots. Same machine, same token.
func DeviceToken() string {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s-%s-%s-%d", DeviceName(), runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
	return fmt.Sprintf("device-%x", h.Sum32())
}
