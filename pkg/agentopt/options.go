// Package agentopt holds the session option snapshot (spec §6) and the
// argv builder that translates it into the backend CLI's command line.
package agentopt

import "github.com/freitascorp/agentsdk/pkg/wire"

// PermissionMode selects how the backend handles tool-use permission
// decisions. Wire spelling is camelCase (spec §6); ToCLIArg returns it.
type PermissionMode int

const (
	PermissionModeUnset PermissionMode = iota
	PermissionModeDefault
	PermissionModeAcceptEdits
	PermissionModeBypassPermissions
	PermissionModePlan
	PermissionModeAllow
	PermissionModeAsk
	PermissionModeDeny
	PermissionModeCustom
)

// ToCLIArg returns the wire/argv spelling for a permission mode, or ""
// for PermissionModeUnset (meaning: omit the flag entirely).
func (m PermissionMode) ToCLIArg() string {
	switch m {
	case PermissionModeDefault:
		return "default"
	case PermissionModeAcceptEdits:
		return "acceptEdits"
	case PermissionModeBypassPermissions:
		return "bypassPermissions"
	case PermissionModePlan:
		return "plan"
	case PermissionModeAllow:
		return "allow"
	case PermissionModeAsk:
		return "ask"
	case PermissionModeDeny:
		return "deny"
	case PermissionModeCustom:
		return "custom"
	default:
		return ""
	}
}

// SystemPrompt is either custom free text or the name of a backend-side
// preset; exactly one of the two fields is meaningful, selected by Preset
// being non-empty.
type SystemPrompt struct {
	Custom string
	Preset string
}

// IsPreset reports whether this system prompt names a preset rather than
// carrying custom text.
func (s SystemPrompt) IsPreset() bool { return s.Preset != "" }

// IsZero reports whether no system prompt was configured.
func (s SystemPrompt) IsZero() bool { return s.Custom == "" && s.Preset == "" }

// Options is the session configuration snapshot (spec §6's recognized
// option keys), taken verbatim at Client construction time and never
// mutated afterward (spec §3's "options: config snapshot").
type Options struct {
	SystemPrompt                  SystemPrompt
	AppendSystemPrompt             string
	MaxTurns                      int // 0 means unset
	Model                         string
	AllowedTools                  []string
	DisallowedTools               []string
	PermissionMode                PermissionMode
	PermissionPromptToolAllowlist []string
	MCPServers                    map[string]any
	SDKMCPServers                 []wire.SDKMCPServerRef
	Hooks                         map[wire.HookEvent][]wire.HookMatcher
	Agents                        map[string]wire.AgentDefinition
	Resume                        string
	ForkSession                   bool
	SessionName                   string
	EnableFileCheckpointing       bool
	CWD                           string
	CLIPath                       string
	Env                           map[string]string
	SettingsSources               []string
	SettingsSourcesSet            bool // true iff the host explicitly set SettingsSources
	OutputFormat                  string
	IncludePartialMessages        bool
	Betas                         []string

	// CanUseTool controls whether the host wishes to receive
	// can_use_tool permission callbacks at all (spec §3's initialize
	// flag). Defaults to true: most hosts that connect want the
	// callback, and original_source/control/mod.rs hardcodes this true
	// in its Initialize request — kept as the default here while still
	// letting a host that registers no permission handler turn it off.
	CanUseTool bool
}

// New returns an Options with the defaults a persistent session expects:
// CanUseTool enabled, everything else unset.
func New() Options {
	return Options{CanUseTool: true}
}

// Builder provides a fluent construction API mirroring
// ClaudeAgentOptionsBuilder (original_source/options.rs).
type Builder struct {
	opts Options
}

// NewBuilder starts a new options builder with the same defaults as New.
func NewBuilder() *Builder {
	return &Builder{opts: New()}
}

func (b *Builder) WithSystemPromptText(text string) *Builder {
	b.opts.SystemPrompt = SystemPrompt{Custom: text}
	return b
}

func (b *Builder) WithSystemPromptPreset(name string) *Builder {
	b.opts.SystemPrompt = SystemPrompt{Preset: name}
	return b
}

func (b *Builder) WithAppendSystemPrompt(text string) *Builder {
	b.opts.AppendSystemPrompt = text
	return b
}

func (b *Builder) WithMaxTurns(n int) *Builder {
	b.opts.MaxTurns = n
	return b
}

func (b *Builder) WithModel(model string) *Builder {
	b.opts.Model = model
	return b
}

func (b *Builder) WithAllowedTools(tools ...string) *Builder {
	b.opts.AllowedTools = tools
	return b
}

func (b *Builder) WithDisallowedTools(tools ...string) *Builder {
	b.opts.DisallowedTools = tools
	return b
}

func (b *Builder) WithPermissionMode(mode PermissionMode) *Builder {
	b.opts.PermissionMode = mode
	return b
}

func (b *Builder) WithSDKMCPServer(name, version string) *Builder {
	b.opts.SDKMCPServers = append(b.opts.SDKMCPServers, wire.SDKMCPServerRef{Name: name, Version: version})
	return b
}

func (b *Builder) WithHook(event wire.HookEvent, matcher wire.HookMatcher) *Builder {
	if b.opts.Hooks == nil {
		b.opts.Hooks = make(map[wire.HookEvent][]wire.HookMatcher)
	}
	b.opts.Hooks[event] = append(b.opts.Hooks[event], matcher)
	return b
}

func (b *Builder) WithAgent(name string, def wire.AgentDefinition) *Builder {
	if b.opts.Agents == nil {
		b.opts.Agents = make(map[string]wire.AgentDefinition)
	}
	b.opts.Agents[name] = def
	return b
}

func (b *Builder) WithResume(sessionID string) *Builder {
	b.opts.Resume = sessionID
	return b
}

func (b *Builder) WithForkSession(fork bool) *Builder {
	b.opts.ForkSession = fork
	return b
}

func (b *Builder) WithSessionName(name string) *Builder {
	b.opts.SessionName = name
	return b
}

func (b *Builder) WithEnableFileCheckpointing(enable bool) *Builder {
	b.opts.EnableFileCheckpointing = enable
	return b
}

func (b *Builder) WithCWD(dir string) *Builder {
	b.opts.CWD = dir
	return b
}

func (b *Builder) WithCLIPath(path string) *Builder {
	b.opts.CLIPath = path
	return b
}

func (b *Builder) WithEnv(key, value string) *Builder {
	if b.opts.Env == nil {
		b.opts.Env = make(map[string]string)
	}
	b.opts.Env[key] = value
	return b
}

func (b *Builder) WithSettingsSources(sources ...string) *Builder {
	b.opts.SettingsSources = sources
	b.opts.SettingsSourcesSet = true
	return b
}

func (b *Builder) WithIncludePartialMessages(include bool) *Builder {
	b.opts.IncludePartialMessages = include
	return b
}

func (b *Builder) WithCanUseTool(enabled bool) *Builder {
	b.opts.CanUseTool = enabled
	return b
}

// Build returns the assembled Options snapshot.
func (b *Builder) Build() Options {
	return b.opts
}
