// Package setup registers the lite MCP server with desktop MCP clients.
package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/medconsensus-server/internal/config"
)

// ServerEntryName is the key of this server in a client's mcpServers map.
const ServerEntryName = "medconsensus"

// ClientConfig is the desktop client configuration file. Unknown top-level
// keys are preserved.
type ClientConfig struct {
	MCPServers map[string]ServerEntry `json:"mcpServers"`
	extra      map[string]json.RawMessage
}

// ServerEntry launches one MCP server.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options controls Install.
type Options struct {
	ConfigPath    string // empty means the platform default
	BinaryPath    string // empty means search PATH and common locations
	DataDir       string
	OpenFDAAPIKey string
	SupplementURL string
	LiteratureURL string
}

// DefaultClientConfigPath returns the platform location of the desktop
// client configuration.
func DefaultClientConfigPath() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json"), nil
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "Claude", "claude_desktop_config.json"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, ".config", "Claude", "claude_desktop_config.json"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA environment variable not set")
		}
		return filepath.Join(appData, "Claude", "claude_desktop_config.json"), nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// LoadClientConfig reads a client configuration. A missing file yields an
// empty configuration.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := &ClientConfig{MCPServers: map[string]ServerEntry{}, extra: map[string]json.RawMessage{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read client config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg.extra); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if raw, ok := cfg.extra["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &cfg.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(cfg.extra, "mcpServers")
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = map[string]ServerEntry{}
	}
	return cfg, nil
}

// Save writes the configuration, creating its directory.
func (c *ClientConfig) Save(path string) error {
	out := make(map[string]interface{}, len(c.extra)+1)
	for k, v := range c.extra {
		out[k] = v
	}
	out["mcpServers"] = c.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode client config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write client config: %w", err)
	}
	return nil
}

// Install adds or replaces the server entry and returns the config path used.
func Install(opts Options) (string, error) {
	path := opts.ConfigPath
	if path == "" {
		var err error
		if path, err = DefaultClientConfigPath(); err != nil {
			return "", err
		}
	}

	binary := opts.BinaryPath
	if binary == "" {
		var err error
		if binary, err = findBinary("mcp-server-lite"); err != nil {
			return "", err
		}
	}

	cfg, err := LoadClientConfig(path)
	if err != nil {
		return "", err
	}

	env := map[string]string{}
	setEnv := func(key, value string) {
		if value != "" {
			env[config.EnvPrefix+"_"+key] = value
		}
	}
	setEnv("DATA_DIR", opts.DataDir)
	setEnv("OPENFDA_API_KEY", opts.OpenFDAAPIKey)
	setEnv("SUPPLEMENT_URL", opts.SupplementURL)
	setEnv("LITERATURE_URL", opts.LiteratureURL)

	cfg.MCPServers[ServerEntryName] = ServerEntry{Command: binary, Env: env}
	if err := cfg.Save(path); err != nil {
		return "", err
	}

	if opts.DataDir != "" {
		lite := config.DefaultLiteConfig()
		lite.DataDir = opts.DataDir
		if err := lite.EnsureDataDir(); err != nil {
			return path, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return path, nil
}

// Uninstall removes the server entry. It reports whether one was present.
func Uninstall(path string) (bool, error) {
	cfg, err := LoadClientConfig(path)
	if err != nil {
		return false, err
	}
	if _, ok := cfg.MCPServers[ServerEntryName]; !ok {
		return false, nil
	}
	delete(cfg.MCPServers, ServerEntryName)
	return true, cfg.Save(path)
}

// Status describes the current registration.
type Status struct {
	ConfigPath   string
	Registered   bool
	BinaryPath   string
	BinaryExists bool
	DataDir      string
	DataDirReady bool
	FeedbackDB   bool
}

// GetStatus inspects the client configuration at path.
func GetStatus(path string) (*Status, error) {
	cfg, err := LoadClientConfig(path)
	if err != nil {
		return nil, err
	}

	status := &Status{ConfigPath: path, DataDir: config.DefaultLiteConfig().DataDir}
	if entry, ok := cfg.MCPServers[ServerEntryName]; ok {
		status.Registered = true
		status.BinaryPath = entry.Command
		_, statErr := os.Stat(entry.Command)
		status.BinaryExists = statErr == nil
		if dir := entry.Env[config.EnvPrefix+"_DATA_DIR"]; dir != "" {
			status.DataDir = dir
		}
	}

	if _, err := os.Stat(status.DataDir); err == nil {
		status.DataDirReady = true
		_, dbErr := os.Stat(filepath.Join(status.DataDir, "feedback.db"))
		status.FeedbackDB = dbErr == nil
	}
	return status, nil
}

func findBinary(name string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	home, _ := os.UserHomeDir()
	for _, loc := range []string{
		filepath.Join(".", "build", name),
		filepath.Join(home, ".local", "bin", name),
		filepath.Join("/usr/local/bin", name),
	} {
		if _, err := os.Stat(loc); err == nil {
			return filepath.Abs(loc)
		}
	}
	return "", fmt.Errorf("binary %q not found on PATH or in common locations", name)
}
