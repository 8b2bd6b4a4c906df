package agentopt

import (
	"os"

	"gopkg.in/yaml.v3"
)

// overlay is the subset of Options a host may want to configure from a
// YAML file via LoadOverlayFile/ApplyOverlay, grounded on the teacher's
// own config-file format. The example CLI has no flag that loads one.
type overlay struct {
	Model           string   `yaml:"model"`
	MaxTurns        int      `yaml:"max_turns"`
	PermissionMode  string   `yaml:"permission_mode"`
	AllowedTools    []string `yaml:"allowed_tools"`
	DisallowedTools []string `yaml:"disallowed_tools"`
	SystemPrompt    string   `yaml:"system_prompt"`
	CWD             string   `yaml:"cwd"`
}

var permissionModeNames = map[string]PermissionMode{
	"default":           PermissionModeDefault,
	"acceptEdits":       PermissionModeAcceptEdits,
	"bypassPermissions": PermissionModeBypassPermissions,
	"plan":              PermissionModePlan,
	"allow":             PermissionModeAllow,
	"ask":               PermissionModeAsk,
	"deny":              PermissionModeDeny,
	"custom":            PermissionModeCustom,
}

// LoadOverlayFile reads a YAML overlay file and applies it on top of the
// given base options, returning the merged result. Fields absent from the
// file leave the base value untouched.
func LoadOverlayFile(path string, base Options) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, err
	}
	return ApplyOverlay(data, base)
}

// ApplyOverlay merges YAML overlay bytes onto base.
func ApplyOverlay(data []byte, base Options) (Options, error) {
	var ov overlay
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return Options{}, err
	}

	out := base
	if ov.Model != "" {
		out.Model = ov.Model
	}
	if ov.MaxTurns != 0 {
		out.MaxTurns = ov.MaxTurns
	}
	if ov.PermissionMode != "" {
		if mode, ok := permissionModeNames[ov.PermissionMode]; ok {
			out.PermissionMode = mode
		}
	}
	if len(ov.AllowedTools) > 0 {
		out.AllowedTools = ov.AllowedTools
	}
	if len(ov.DisallowedTools) > 0 {
		out.DisallowedTools = ov.DisallowedTools
	}
	if ov.SystemPrompt != "" {
		out.SystemPrompt = SystemPrompt{Custom: ov.SystemPrompt}
	}
	if ov.CWD != "" {
		out.CWD = ov.CWD
	}
	return out, nil
}
