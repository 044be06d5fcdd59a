package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
)

const serverName = "relatio-go"

// SetupCmd configures MCP for various AI clients.
type SetupCmd struct {
	Qwen     bool   `help:"Configure for Qwen CLI"`
	Claude   bool   `help:"Configure for Claude Code"`
	Cursor   bool   `help:"Configure for Cursor"`
	Local    bool   `help:"Create project-local configuration"`
	Global   bool   `help:"Create global configuration"`
	Format   string `help:"Output format (json|text)" enum:"json,text" default:"json"`
	FilePath string `help:"Custom directory for the local configuration"`
	Watch    string `help:"Input directory the server rebuilds from"`
}

// Run executes the setup command.
func (c *SetupCmd) Run(g *Globals) error {
	if c.Format != "json" && c.Format != "text" {
		return fmt.Errorf("invalid format: %s (must be json or text)", c.Format)
	}

	dir := "."
	if g != nil && g.Dir != "" {
		dir = g.Dir
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	config := generateServerConfig(absDir, c.Watch)

	var clients []string
	if c.Qwen {
		clients = append(clients, "qwen")
	}
	if c.Claude {
		clients = append(clients, "claude")
	}
	if c.Cursor {
		clients = append(clients, "cursor")
	}

	// Without a client the configuration goes to stdout.
	if len(clients) == 0 {
		return c.outputConfig(config)
	}

	if !c.Local && !c.Global {
		c.Local = true
	}

	for _, client := range clients {
		if err := c.setupClient(client, config); err != nil {
			return err
		}
	}
	return nil
}

func (c *SetupCmd) outputConfig(config map[string]any) error {
	if c.Format == "json" {
		jsonBytes, err := json.MarshalIndent(config, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(jsonBytes))
		return nil
	}

	fmt.Println("# Add this to your MCP client configuration:")
	fmt.Println()
	fmt.Print(textConfig(config))
	return nil
}

func (c *SetupCmd) setupClient(client string, config map[string]any) error {
	if c.Global {
		globalPath := getGlobalConfigPath(client)
		if err := writeConfig(globalPath, config, c.Format); err != nil {
			return err
		}
		color.Green("✓ Created global %s MCP config at %s", client, globalPath)
	}

	if c.Local {
		localPath := getLocalConfigPath(".", client)
		if c.FilePath != "" {
			localPath = filepath.Join(c.FilePath, "mcp.json")
		}
		if err := writeConfig(localPath, config, c.Format); err != nil {
			return err
		}
		color.Green("✓ Created local %s MCP config at %s", client, localPath)
	}
	return nil
}

// generateServerConfig returns the mcpServers entry that starts relatio
// against the index in dir.
func generateServerConfig(dir, watch string) map[string]any {
	args := []string{"--dir", dir, "serve"}
	if watch != "" {
		args = append(args, "--watch", watch)
	}
	return map[string]any{
		"mcpServers": map[string]any{
			serverName: map[string]any{
				"command": serverName,
				"args":    args,
			},
		},
	}
}

// Path helpers

func getLocalConfigPath(basePath, client string) string {
	return filepath.Join(basePath, getClientConfigDir(client), "mcp.json")
}

func getGlobalConfigPath(client string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
	}
	return filepath.Join(homeDir, getClientConfigDir(client), "global", "mcp.json")
}

func getClientConfigDir(client string) string {
	switch client {
	case "claude":
		return ".claude"
	case "cursor":
		return ".cursor"
	default:
		return ".qwen"
	}
}

// Config writers

func writeConfig(configPath string, config map[string]any, format string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	var content []byte
	if format == "json" {
		var err error
		content, err = json.MarshalIndent(config, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		content = append(content, '\n')
	} else {
		content = []byte("# MCP Configuration for relatio\n# Generated by relatio-go setup\n\n" + textConfig(config))
	}

	if err := os.WriteFile(configPath, content, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func textConfig(config map[string]any) string {
	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %s\n", k, toJSON(config[k]))
	}
	return sb.String()
}

func toJSON(v any) string {
	bytes, _ := json.Marshal(v)
	return string(bytes)
}
