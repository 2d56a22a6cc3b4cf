package server

import (
	"fmt"
	"path/filepath"

	"github.com/vpastila/mineserv/internal/models"
)

// ServerJarName is the artifact every instance directory must contain before
// its process can be launched.
const ServerJarName = "server.jar"

// JavaLaunchSpec builds the JVM invocation for an instance: heap bounds from
// the declared memory limit, headless server mode, instance directory as the
// working directory.
func JavaLaunchSpec(cfg models.InstanceConfig, dir string) LaunchSpec {
	heap := fmt.Sprintf("-Xmx%dM", cfg.MemoryMB)
	initial := fmt.Sprintf("-Xms%dM", cfg.MemoryMB/2)
	return LaunchSpec{
		Command:  "java",
		Args:     []string{initial, heap, "-jar", ServerJarName, "nogui"},
		Dir:      dir,
		Artifact: filepath.Join(dir, ServerJarName),
	}
}
