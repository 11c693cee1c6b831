package prompt

import (
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Bundle 是一组按 Agent 名称组织的提示词（按版本管理）。
type Bundle struct {
	Version string                 `yaml:"version"`
	Agents  map[string]AgentPrompt `yaml:"agents"`
}

// AgentPrompt 描述单个 Agent 的系统提示词与任务模板。
type AgentPrompt struct {
	Role        string   `yaml:"role,omitempty"`
	Identity    string   `yaml:"identity,omitempty"`
	Policies    []string `yaml:"policies,omitempty"`
	OutputRules []string `yaml:"output_rules,omitempty"`
	Constraints []string `yaml:"constraints,omitempty"`
	Task        string   `yaml:"task"`
}

// ParseBundle decodes a YAML prompt bundle.
func ParseBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse prompt bundle: %w", err)
	}
	if len(b.Agents) == 0 {
		return nil, fmt.Errorf("parse prompt bundle: no agents defined")
	}
	return &b, nil
}

// LoadBundle reads a bundle from fsys. Pass os.DirFS for files on disk.
func LoadBundle(fsys fs.FS, name string) (*Bundle, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read prompt bundle %s: %w", name, err)
	}
	return ParseBundle(data)
}

// LoadBundleFile reads a bundle from a path on disk.
func LoadBundleFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt bundle %s: %w", path, err)
	}
	return ParseBundle(data)
}

// Merge overlays other on b. Agents present in other replace those in b.
func (b *Bundle) Merge(other *Bundle) *Bundle {
	out := &Bundle{Version: b.Version, Agents: make(map[string]AgentPrompt, len(b.Agents))}
	for k, v := range b.Agents {
		out.Agents[k] = v
	}
	if other == nil {
		return out
	}
	if v := strings.TrimSpace(other.Version); v != "" {
		out.Version = v
	}
	for k, v := range other.Agents {
		out.Agents[k] = v
	}
	return out
}

// Spec returns the prompt pair for an agent.
func (b *Bundle) Spec(agent string) (Spec, error) {
	p, ok := b.Agents[agent]
	if !ok {
		return Spec{}, fmt.Errorf("prompt bundle %s: no prompt for agent %q", b.Version, agent)
	}
	return p.Spec(), nil
}

// Spec renders the system sections into a single system template.
func (p AgentPrompt) Spec() Spec {
	return Spec{SystemTemplate: p.RenderSystem(), TaskTemplate: p.Task}
}

// RenderSystem joins role, identity and bullet sections.
func (p AgentPrompt) RenderSystem() string {
	var parts []string
	if v := strings.TrimSpace(p.Role); v != "" {
		parts = append(parts, v)
	}
	if v := strings.TrimSpace(p.Identity); v != "" {
		parts = append(parts, v)
	}
	if s := formatBulletSection("Policies:", p.Policies); s != "" {
		parts = append(parts, s)
	}
	if s := formatBulletSection("Output rules:", p.OutputRules); s != "" {
		parts = append(parts, s)
	}
	if s := formatBulletSection("Constraints:", p.Constraints); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n\n")
}

func formatBulletSection(title string, items []string) string {
	var cleaned []string
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it != "" {
			cleaned = append(cleaned, "- "+it)
		}
	}
	if len(cleaned) == 0 {
		return ""
	}
	return title + "\n" + strings.Join(cleaned, "\n")
}
