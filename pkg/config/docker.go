package config

import (
	"os"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker reports whether the process runs inside a container.
// Detection uses /.dockerenv, or EKAYA_IN_DOCKER=true for runtimes that do
// not create it. The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		if os.Getenv("EKAYA_IN_DOCKER") == "true" {
			isDockerResult = true
			return
		}
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps loopback warehouse hosts to host.docker.internal
// when running in a container, so a local Postgres or MySQL on the host stays
// reachable. Other hosts are returned unchanged.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}
	return resolveLoopback(host)
}

func resolveLoopback(host string) string {
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return "host.docker.internal"
	}
	return host
}
