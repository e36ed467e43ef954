// Package setup registers the neurodx MCP server with desktop MCP clients.
package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ServerName is the key the server is registered under.
const ServerName = "neurodx"

// DataDirEnv is passed to the registered server so it finds its data.
const DataDirEnv = "NEURODX_DATA_DIR"

// ServerEntry is one entry of the client's mcpServers map.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// ClientConfig is the desktop client configuration file. Only the neurodx
// entry is ever decoded; every other key and server entry is carried through
// byte for byte.
type ClientConfig struct {
	MCPServers map[string]json.RawMessage
	other      map[string]json.RawMessage
}

// Entry decodes the server entry registered under name.
func (c *ClientConfig) Entry(name string) (*ServerEntry, error) {
	raw, ok := c.MCPServers[name]
	if !ok {
		return nil, nil
	}
	var entry ServerEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to parse %s entry: %w", name, err)
	}
	return &entry, nil
}

// SetEntry replaces the server entry registered under name.
func (c *ClientConfig) SetEntry(name string, entry ServerEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	c.MCPServers[name] = raw
	return nil
}

// Options describes the entry Register writes.
type Options struct {
	BinaryPath string
	DataDir    string
	ConfigFile string
}

// Status is the registration state reported by Check.
type Status struct {
	ConfigPath string       `json:"config_path"`
	Registered bool         `json:"registered"`
	Entry      *ServerEntry `json:"entry,omitempty"`
	Issues     []string     `json:"issues,omitempty"`
}

// DesktopConfigPath returns the location of the desktop client config file
// on this platform.
func DesktopConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return desktopConfigPath(runtime.GOOS, home, os.Getenv)
}

func desktopConfigPath(goos, home string, getenv func(string) string) (string, error) {
	var dir string
	switch goos {
	case "darwin":
		dir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := getenv("XDG_CONFIG_HOME"); xdg != "" {
			dir = filepath.Join(xdg, "Claude")
		} else {
			dir = filepath.Join(home, ".config", "Claude")
		}
	case "windows":
		appData := getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA environment variable not set")
		}
		dir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", goos)
	}
	return filepath.Join(dir, "claude_desktop_config.json"), nil
}

// Load reads the client config at path. A missing file yields an empty
// config.
func Load(path string) (*ClientConfig, error) {
	config := &ClientConfig{
		MCPServers: make(map[string]json.RawMessage),
		other:      make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &config.other); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if raw, ok := config.other["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &config.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(config.other, "mcpServers")
	}
	if config.MCPServers == nil {
		config.MCPServers = make(map[string]json.RawMessage)
	}
	return config, nil
}

// Save writes config to path, creating the directory if needed.
func (c *ClientConfig) Save(path string) error {
	doc := make(map[string]any, len(c.other)+1)
	for k, v := range c.other {
		doc[k] = v
	}
	doc["mcpServers"] = c.MCPServers

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Register adds or replaces the neurodx entry in the client config at path.
func Register(path string, opts Options) (*ServerEntry, error) {
	config, err := Load(path)
	if err != nil {
		return nil, err
	}

	binary := opts.BinaryPath
	if binary == "" {
		binary, err = FindBinary()
		if err != nil {
			return nil, err
		}
	}

	entry := ServerEntry{Command: binary}
	if opts.ConfigFile != "" {
		entry.Args = []string{"--config", opts.ConfigFile}
	}
	if opts.DataDir != "" {
		entry.Env = map[string]string{DataDirEnv: opts.DataDir}
	}

	if err := config.SetEntry(ServerName, entry); err != nil {
		return nil, err
	}
	if err := config.Save(path); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Unregister removes the neurodx entry. It reports whether one was present.
func Unregister(path string) (bool, error) {
	config, err := Load(path)
	if err != nil {
		return false, err
	}
	if _, ok := config.MCPServers[ServerName]; !ok {
		return false, nil
	}
	delete(config.MCPServers, ServerName)
	return true, config.Save(path)
}

// Check inspects the client config at path.
func Check(path string) (*Status, error) {
	config, err := Load(path)
	if err != nil {
		return nil, err
	}

	status := &Status{ConfigPath: path}
	entry, err := config.Entry(ServerName)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		status.Issues = append(status.Issues, "neurodx is not registered")
		return status, nil
	}
	status.Registered = true
	status.Entry = entry

	info, err := os.Stat(entry.Command)
	switch {
	case err != nil:
		status.Issues = append(status.Issues, fmt.Sprintf("server binary not found: %s", entry.Command))
	case info.Mode()&0111 == 0:
		status.Issues = append(status.Issues, fmt.Sprintf("server binary is not executable: %s", entry.Command))
	}
	return status, nil
}

// FindBinary locates the mcp-server binary on PATH or next to the running
// executable.
func FindBinary() (string, error) {
	const name = "neurodx-mcp-server"
	if path, err := exec.LookPath(name); err == nil {
		return filepath.Abs(path)
	}
	if self, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("binary %q not found, pass --binary", name)
}
