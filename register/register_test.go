package register

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func Test_DeriveServerName(t *testing.T) {
	tests := []struct {
		name       string
		binaryPath string
		want       string
	}{
		{"strip -mcp suffix", "assetindex-mcp", "assetindex"},
		{"strip .exe and -mcp", "assetindex-mcp.exe", "assetindex"},
		{"no -mcp suffix passthrough", "myserver", "myserver"},
		{"only .exe suffix", "myserver.exe", "myserver"},
		{"full path stripped to base", "/usr/local/bin/assetindex-mcp", "assetindex"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveServerName(tt.binaryPath)
			if got != tt.want {
				t.Errorf("DeriveServerName(%q) = %q, want %q", tt.binaryPath, got, tt.want)
			}
		})
	}
}

func Test_ParseScope(t *testing.T) {
	tests := []struct {
		in      string
		want    Scope
		wantErr bool
	}{
		{"project", ScopeProject, false},
		{"USER", ScopeUser, false},
		{"global", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseScope(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseScope(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseScope(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func Test_writeConfig_CreatesNewFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ".mcp.json")

	entry := mcpServerEntry{Command: "/usr/bin/myserver", Args: []string{"--priority", "20"}}
	if err := writeConfig(configPath, "myserver", entry); err != nil {
		t.Fatalf("writeConfig() error: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("reading config: %v", err)
	}

	var config map[string]any
	if err := json.Unmarshal(data, &config); err != nil {
		t.Fatalf("parsing config: %v", err)
	}

	servers, ok := config["mcpServers"].(map[string]any)
	if !ok {
		t.Fatal("mcpServers not found or not an object")
	}
	serverEntry, ok := servers["myserver"].(map[string]any)
	if !ok {
		t.Fatal("myserver entry not found or not an object")
	}
	if serverEntry["command"] != "/usr/bin/myserver" {
		t.Errorf("command = %v, want /usr/bin/myserver", serverEntry["command"])
	}
}

func Test_writeConfig_UpdatesExistingEntry(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ".mcp.json")

	initial := map[string]any{
		"theme": "dark",
		"mcpServers": map[string]any{
			"other-server": map[string]any{"command": "/usr/bin/other"},
			"myserver":     map[string]any{"command": "/old/path"},
		},
	}
	initialData, _ := json.MarshalIndent(initial, "", "  ")
	if err := os.WriteFile(configPath, initialData, 0644); err != nil {
		t.Fatal(err)
	}

	entry := mcpServerEntry{Command: "/new/path", Args: []string{"--flag"}}
	if err := writeConfig(configPath, "myserver", entry); err != nil {
		t.Fatalf("writeConfig() error: %v", err)
	}

	data, _ := os.ReadFile(configPath)
	var config map[string]any
	if err := json.Unmarshal(data, &config); err != nil {
		t.Fatal(err)
	}

	if config["theme"] != "dark" {
		t.Errorf("unrelated key lost: %v", config["theme"])
	}
	servers := config["mcpServers"].(map[string]any)
	otherEntry := servers["other-server"].(map[string]any)
	if otherEntry["command"] != "/usr/bin/other" {
		t.Errorf("other-server command changed unexpectedly: %v", otherEntry["command"])
	}
	myEntry := servers["myserver"].(map[string]any)
	if myEntry["command"] != "/new/path" {
		t.Errorf("myserver command = %v, want /new/path", myEntry["command"])
	}
}

func Test_writeConfig_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ".mcp.json")
	if err := os.WriteFile(configPath, []byte("not valid json{{{"), 0644); err != nil {
		t.Fatal(err)
	}

	err := writeConfig(configPath, "myserver", mcpServerEntry{Command: "/usr/bin/myserver"})
	if err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

func Test_writeConfig_ServersNotObject(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ".mcp.json")
	if err := os.WriteFile(configPath, []byte(`{"mcpServers": []}`), 0644); err != nil {
		t.Fatal(err)
	}

	if err := writeConfig(configPath, "myserver", mcpServerEntry{Command: "x"}); err == nil {
		t.Fatal("expected error when mcpServers is not an object")
	}
}

func Test_buildEntry(t *testing.T) {
	binaryPath := "/usr/local/bin/assetindex-mcp"
	serverArgs := []string{"--priority", "20"}

	entry := buildEntry(binaryPath, serverArgs)

	if runtime.GOOS == "windows" {
		if entry.Command != "cmd" {
			t.Errorf("command = %q, want \"cmd\"", entry.Command)
		}
		if len(entry.Args) < 2 || entry.Args[0] != "/C" || entry.Args[1] != binaryPath {
			t.Errorf("args = %v, want [/C %s --priority 20]", entry.Args, binaryPath)
		}
	} else {
		if entry.Command != binaryPath {
			t.Errorf("command = %q, want %q", entry.Command, binaryPath)
		}
		if !sliceEqual(entry.Args, serverArgs) {
			t.Errorf("args = %v, want %v", entry.Args, serverArgs)
		}
	}
}

func Test_ConfigPath_Project(t *testing.T) {
	got, err := ConfigPath(ScopeProject, "")
	if err != nil {
		t.Fatalf("ConfigPath() error: %v", err)
	}

	absDir, _ := filepath.Abs(".")
	want := filepath.Join(absDir, ".mcp.json")
	if got != want {
		t.Errorf("ConfigPath(project, \"\") = %q, want %q", got, want)
	}
}

func Test_ConfigPath_User(t *testing.T) {
	got, err := ConfigPath(ScopeUser, "")
	if err != nil {
		t.Fatalf("ConfigPath() error: %v", err)
	}

	homeDir, _ := os.UserHomeDir()
	want := filepath.Join(homeDir, ".claude.json")
	if got != want {
		t.Errorf("ConfigPath(user) = %q, want %q", got, want)
	}
}

func Test_Register_Project(t *testing.T) {
	tmpDir := t.TempDir()

	path, err := Register(Options{
		Scope:      ScopeProject,
		Directory:  tmpDir,
		BinaryPath: "/opt/bin/assetindex-mcp",
		ServerArgs: []string{"--no-snapshot"},
	})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if path != filepath.Join(tmpDir, ".mcp.json") {
		t.Errorf("path = %q", path)
	}

	data, _ := os.ReadFile(path)
	var config struct {
		MCPServers map[string]mcpServerEntry `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &config); err != nil {
		t.Fatal(err)
	}
	entry, ok := config.MCPServers["assetindex"]
	if !ok {
		t.Fatalf("entry not written under derived name: %v", config.MCPServers)
	}
	if runtime.GOOS != "windows" && entry.Command != "/opt/bin/assetindex-mcp" {
		t.Errorf("command = %q", entry.Command)
	}
}

func sliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
