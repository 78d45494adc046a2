package llm

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var defaultModelsYAML []byte

// ═══════════════════════════════════════════════════════════════════════════
// 模型注册表
// ═══════════════════════════════════════════════════════════════════════════

// Model 注册的模型
type Model struct {
	// ID 本地模型 ID，如 "neuralwatt/gpt-oss-20b"
	ID string `yaml:"id" json:"id"`

	// Name 发送给 API 的上游模型名称，如 "openai/gpt-oss-20b"
	Name string `yaml:"name" json:"name"`

	// Aliases 别名
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Registry 模型注册表
//
// 通过 ID、别名或上游名称解析模型。注册表构建后只读，可并发使用。
type Registry struct {
	models []Model
	index  map[string]int
}

type registryFile struct {
	Models []Model `yaml:"models"`
}

// DefaultRegistry 返回内嵌的默认注册表
func DefaultRegistry() *Registry {
	r, err := LoadRegistry(defaultModelsYAML)
	if err != nil {
		panic(fmt.Sprintf("llm: embedded models.yaml: %v", err))
	}
	return r
}

// LoadRegistryFile 从 YAML 文件加载注册表
func LoadRegistryFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	return LoadRegistry(data)
}

// LoadRegistry 从 YAML 数据加载注册表
//
// ID 与别名在整个注册表内必须唯一。
func LoadRegistry(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	r := &Registry{index: make(map[string]int)}
	for _, m := range f.Models {
		if err := r.add(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(m Model) error {
	if m.ID == "" {
		return NewConfigError("model id is required", nil)
	}
	if m.Name == "" {
		m.Name = m.ID
	}

	idx := len(r.models)
	for _, key := range append([]string{m.ID}, m.Aliases...) {
		if _, dup := r.index[key]; dup {
			return NewConfigError(fmt.Sprintf("duplicate model id or alias %q", key), nil)
		}
		r.index[key] = idx
	}
	r.models = append(r.models, m)
	return nil
}

// Resolve 按 ID 或别名查找模型
func (r *Registry) Resolve(nameOrAlias string) (Model, bool) {
	if idx, ok := r.index[nameOrAlias]; ok {
		return r.models[idx], true
	}
	// 上游名称也可以直接使用
	for _, m := range r.models {
		if m.Name == nameOrAlias {
			return m, true
		}
	}
	return Model{}, false
}

// UpstreamName 返回发送给 API 的模型名称
//
// 未注册的名称原样返回，便于使用注册表之外的新模型。
func (r *Registry) UpstreamName(nameOrAlias string) string {
	if m, ok := r.Resolve(nameOrAlias); ok {
		return m.Name
	}
	return nameOrAlias
}

// Models 返回所有已注册模型（按注册顺序）
func (r *Registry) Models() []Model {
	out := make([]Model, len(r.models))
	for i, m := range r.models {
		m.Aliases = slices.Clone(m.Aliases)
		out[i] = m
	}
	return out
}
