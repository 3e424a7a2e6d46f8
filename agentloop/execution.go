package agentloop

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
)

// Environment describes the machine and directory the agent works in. File
// tools are rooted at WorkingDir and the system prompt reports the rest.
type Environment struct {
	WorkingDir string
	Platform   string
	OSVersion  string
	Username   string
}

// NewLocalEnvironment describes the local machine. An empty workingDir
// means the current directory.
func NewLocalEnvironment(workingDir string) (Environment, error) {
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Environment{}, fmt.Errorf("environment: %w", err)
		}
		workingDir = wd
	}
	abs, err := filepath.Abs(workingDir)
	if err != nil {
		return Environment{}, fmt.Errorf("environment: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Environment{}, fmt.Errorf("environment: %w", err)
	}
	if !info.IsDir() {
		return Environment{}, fmt.Errorf("environment: %s is not a directory", abs)
	}

	return Environment{
		WorkingDir: abs,
		Platform:   runtime.GOOS,
		OSVersion:  runtime.GOOS + "/" + runtime.GOARCH,
		Username:   currentUsername(),
	}, nil
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return filepath.Base(u.Username)
	}
	for _, key := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return "there"
}
