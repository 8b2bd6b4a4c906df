package agentopt

import (
	"strconv"
	"strings"
)

// ToArgs builds the backend CLI's argv from the options snapshot. prompt
// is non-empty only for the one-shot query path (spec §4.7, §6 — the
// persistent Client path sends prompts via stdin instead).
//
// Flag style is space-separated tokens ("--max-turns", "3"), not
// "="-joined ("--max-turns=3"): this follows spec.md's literal argv
// invariants, which take precedence over original_source/options.rs's
// to_cli_args (which joins with "=" and additionally spells the
// settings-sources flag in the plural — this module follows the spec's
// singular "--setting-sources" spelling verbatim, since the flag name
// itself is part of the wire contract being reimplemented, not a detail
// left to implementer taste).
func (o Options) ToArgs(prompt string) []string {
	var args []string
	add := func(flag string, value string) {
		args = append(args, flag, value)
	}

	args = append(args, "--output-format", "stream-json", "--verbose", "--input-format", "stream-json")

	if !o.SystemPrompt.IsZero() {
		if o.SystemPrompt.IsPreset() {
			add("--system-prompt-preset", o.SystemPrompt.Preset)
		} else {
			add("--system-prompt", o.SystemPrompt.Custom)
		}
	}
	if o.AppendSystemPrompt != "" {
		add("--append-system-prompt", o.AppendSystemPrompt)
	}
	if o.MaxTurns > 0 {
		add("--max-turns", strconv.Itoa(o.MaxTurns))
	}
	if o.Model != "" {
		add("--model", o.Model)
	}
	if mode := o.PermissionMode.ToCLIArg(); mode != "" {
		add("--permission-mode", mode)
	}
	if len(o.AllowedTools) > 0 {
		add("--allowed-tools", strings.Join(o.AllowedTools, ","))
	}
	if len(o.DisallowedTools) > 0 {
		add("--disallowed-tools", strings.Join(o.DisallowedTools, ","))
	}
	if o.Resume != "" {
		add("--resume", o.Resume)
	}
	if o.ForkSession {
		args = append(args, "--fork-session")
	}
	if o.SessionName != "" {
		add("--session-name", o.SessionName)
	}
	if o.EnableFileCheckpointing {
		args = append(args, "--enable-file-checkpointing")
	}

	// Always emitted exactly once, empty when unset (spec §6, §9
	// "Settings-sources default"): isolates the session from any
	// user-level configuration the backend might otherwise pick up.
	if o.SettingsSourcesSet {
		add("--setting-sources", strings.Join(o.SettingsSources, ","))
	} else {
		add("--setting-sources", "")
	}

	if prompt != "" {
		add("-p", prompt)
	}

	return args
}
