package container

import (
	"os"
	"strings"
)

// IsContainerised reports whether the gateway is likely running inside a
// container, where binding to localhost would make it unreachable.
func IsContainerised() bool {
	return fileExists("/.dockerenv") ||
		fileExists("/run/.containerenv") ||
		cgroupMentionsRuntime("/proc/1/cgroup") ||
		os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func cgroupMentionsRuntime(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	content := string(data)
	for _, marker := range []string{"docker", "containerd", "kubepods", "libpod"} {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}
