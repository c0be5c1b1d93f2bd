// SPDX-License-Identifier: MPL-2.0

package report

import (
	"os"
	"runtime"
	"sort"
	"strings"

	"lance/config"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

type HostInfo struct {
	OS              string `json:"os"`
	Arch            string `json:"arch"`
	Platform        string `json:"platform,omitempty"`
	PlatformVersion string `json:"platformVersion,omitempty"`
	KernelVersion   string `json:"kernelVersion,omitempty"`
	MemoryTotal     uint64 `json:"memoryTotal,omitempty"`
	MemoryAvailable uint64 `json:"memoryAvailable,omitempty"`
	GoVersion       string `json:"goVersion"`
}

// Host collects what gopsutil can tell about the machine. Lookup failures
// leave fields empty.
func Host() HostInfo {
	info := HostInfo{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		GoVersion: runtime.Version(),
	}
	if h, err := host.Info(); err == nil {
		info.Platform = h.Platform
		info.PlatformVersion = h.PlatformVersion
		info.KernelVersion = h.KernelVersion
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryTotal = vm.Total
		info.MemoryAvailable = vm.Available
	}
	return info
}

const redacted = "<redacted>"

var secretConfigKeys = map[string]string{
	config.KeyPassword:         redacted,
	config.KeyToken:            redacted,
	config.KeyLastSyncResponse: "<skipped>",
}

var secretEnvMarkers = []string{"TOKEN", "SECRET", "PASSWORD", "PASSWD", "KEY", "DSN", "CREDENTIAL", "AUTH"}

// Snapshot is the payload of the send-report command.
type Snapshot struct {
	Config map[string]any    `json:"config"`
	Env    map[string]string `json:"env"`
	Host   HostInfo          `json:"host"`
}

// NewSnapshot gathers config, environment and host info with secrets masked.
func NewSnapshot(cfg map[string]any, environ []string) Snapshot {
	s := Snapshot{
		Config: make(map[string]any, len(cfg)),
		Env:    make(map[string]string, len(environ)),
		Host:   Host(),
	}
	for k, v := range cfg {
		if mask, ok := secretConfigKeys[k]; ok {
			s.Config[k] = mask
			continue
		}
		s.Config[k] = v
	}
	for _, kv := range environ {
		k, v, _ := strings.Cut(kv, "=")
		if isSecretEnv(k) {
			v = redacted
		}
		s.Env[k] = v
	}
	return s
}

func isSecretEnv(key string) bool {
	upper := strings.ToUpper(key)
	for _, marker := range secretEnvMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

// Environ returns os.Environ sorted, for stable output.
func Environ() []string {
	env := os.Environ()
	sort.Strings(env)
	return env
}
