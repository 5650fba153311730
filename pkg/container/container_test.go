package container

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCgroupMentionsRuntime(t *testing.T) {
	dir := t.TempDir()

	docker := filepath.Join(dir, "docker")
	if err := os.WriteFile(docker, []byte("0::/system.slice/docker-abc.scope\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	bare := filepath.Join(dir, "bare")
	if err := os.WriteFile(bare, []byte("0::/init.scope\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if !cgroupMentionsRuntime(docker) {
		t.Error("expected docker cgroup to be detected")
	}
	if cgroupMentionsRuntime(bare) {
		t.Error("plain cgroup should not look containerised")
	}
	if cgroupMentionsRuntime(filepath.Join(dir, "missing")) {
		t.Error("missing file should not look containerised")
	}
}

func TestIsContainerised_Kubernetes(t *testing.T) {
	t.Setenv("KUBERNETES_SERVICE_HOST", "10.96.0.1")
	if !IsContainerised() {
		t.Error("expected kubernetes env to be detected")
	}
}
