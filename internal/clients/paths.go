package clients

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// DefaultConfigPath returns the canonical settings file location for a
// client on the current platform. Clients without a fixed location
// (mcp-hub itself, custom) report an error.
func DefaultConfigPath(ct ClientType) (string, error) {
	switch ct {
	case ClientClaudeDesktop:
		return platformPath("Claude/claude_desktop_config.json", "Claude\\claude_desktop_config.json", ".config/Claude/claude_desktop_config.json")
	case ClientVscode, ClientCline, ClientContinue:
		return platformPath("Code/User/settings.json", "Code\\User\\settings.json", ".config/Code/User/settings.json")
	case ClientCursor:
		return platformPath("Cursor/User/settings.json", "Cursor\\User\\settings.json", ".config/Cursor/User/settings.json")
	case ClientWindsurf:
		return platformPath("Windsurf/User/settings.json", "Windsurf\\User\\settings.json", ".config/Windsurf/User/settings.json")
	case ClientZed:
		// Zed keeps its settings under ~/.config on macOS as well.
		return platformPath("../../.config/zed/settings.json", "Zed\\settings.json", ".config/zed/settings.json")
	default:
		return "", fmt.Errorf("no default config path for client type %q", ct)
	}
}

func platformPath(macRel, winRel, linuxRel string) (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", filepath.FromSlash(macRel)), nil
	case "windows":
		appdata := os.Getenv("APPDATA")
		if appdata == "" {
			return "", errors.New("APPDATA is not set")
		}
		return filepath.Join(appdata, filepath.FromSlash(winRel)), nil
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, filepath.FromSlash(linuxRel)), nil
	}
}

// NormalizePath resolves symlinks and relative segments. A path that exists
// but cannot be resolved is returned as given; a missing path is an error.
func NormalizePath(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		abs, aerr := filepath.Abs(resolved)
		if aerr == nil {
			return abs, nil
		}
		return resolved, nil
	}
	if _, serr := os.Stat(path); serr == nil {
		return path, nil
	}
	return "", fmt.Errorf("path does not exist or is not accessible: %w", err)
}

// ValidatePath checks a path for use in a server configuration. With
// mustExist it also normalizes; otherwise it only rejects the empty path.
func ValidatePath(path string, mustExist bool) (string, error) {
	if mustExist {
		return NormalizePath(path)
	}
	if path == "" {
		return "", errors.New("path is empty")
	}
	return path, nil
}
