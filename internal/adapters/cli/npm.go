package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
	"github.com/iamxurulin/xu-AI-Zero/internal/logging"
)

const (
	DefaultInstallTimeout = 5 * time.Minute
	DefaultBuildTimeout   = 3 * time.Minute
)

// NpmConfig configures NpmBuilder.
type NpmConfig struct {
	Path           string
	InstallTimeout time.Duration
	BuildTimeout   time.Duration
}

// NpmBuilder builds generated projects with npm install and npm run build.
type NpmBuilder struct {
	*BaseAdapter
	installTimeout time.Duration
	buildTimeout   time.Duration
}

var _ core.ProjectBuilder = (*NpmBuilder)(nil)

// NewNpmBuilder creates a builder. An empty path picks npm for the platform.
func NewNpmBuilder(cfg NpmConfig, logger *logging.Logger) *NpmBuilder {
	if cfg.Path == "" {
		cfg.Path = "npm"
		if runtime.GOOS == "windows" {
			cfg.Path = "npm.cmd"
		}
	}
	if cfg.InstallTimeout <= 0 {
		cfg.InstallTimeout = DefaultInstallTimeout
	}
	if cfg.BuildTimeout <= 0 {
		cfg.BuildTimeout = DefaultBuildTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	base := NewBaseAdapter(AgentConfig{Name: "npm", Path: cfg.Path}, logger.WithComponent("npm"))
	return &NpmBuilder{
		BaseAdapter:    base,
		installTimeout: cfg.InstallTimeout,
		buildTimeout:   cfg.BuildTimeout,
	}
}

// BuildProject installs dependencies and builds dir. It succeeds only when
// dir/dist exists afterwards.
func (n *NpmBuilder) BuildProject(ctx context.Context, dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return core.ErrBuild(fmt.Sprintf("project directory %s does not exist", dir))
	}
	if _, err := os.Stat(filepath.Join(dir, "package.json")); err != nil {
		return core.ErrBuild(fmt.Sprintf("package.json not found in %s", dir))
	}

	if _, err := n.ExecuteCommand(ctx, []string{"install"}, "", dir, n.installTimeout); err != nil {
		return core.ErrBuild("npm install failed").WithCause(err)
	}
	if _, err := n.ExecuteCommand(ctx, []string{"run", "build"}, "", dir, n.buildTimeout); err != nil {
		return core.ErrBuild("npm run build failed").WithCause(err)
	}

	if info, err := os.Stat(filepath.Join(dir, "dist")); err != nil || !info.IsDir() {
		return core.ErrBuild(fmt.Sprintf("build finished but %s has no dist directory", dir))
	}
	n.logger.Info("npm: project built", "dir", dir)
	return nil
}
