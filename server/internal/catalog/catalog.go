// Package catalog 提供场景目录：内置原始的十个场景，可由 YAML 文件整体覆盖。
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"socialsim/server/internal/model"
)

//go:embed scenarios.yaml
var builtinYAML []byte

// ErrScenarioNotFound 场景 id 不存在。
var ErrScenarioNotFound = errors.New("scenario not found")

// Catalog 是只读的场景目录，创建后不再修改，可并发读取。
type Catalog struct {
	scenarios []model.Scenario
	byID      map[string]int
}

// Entry 是带锁定状态的目录条目，用于向客户端展示。
type Entry struct {
	model.Scenario
	Locked bool `json:"locked"`
}

// Builtin 返回内置目录。
func Builtin() *Catalog {
	c, err := Parse(builtinYAML)
	if err != nil {
		panic(fmt.Sprintf("builtin scenarios: %v", err))
	}
	return c
}

// Load 从指定路径加载场景目录；path 为空时返回内置目录。
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Builtin(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse scenarios %s: %w", path, err)
	}
	return c, nil
}

// Parse 解析 YAML 列表并校验。
func Parse(data []byte) (*Catalog, error) {
	var list []model.Scenario
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return New(list)
}

// New 根据场景列表构建目录。模板上的 Gender 会被清空。
func New(list []model.Scenario) (*Catalog, error) {
	if len(list) == 0 {
		return nil, errors.New("empty scenario list")
	}
	c := &Catalog{
		scenarios: make([]model.Scenario, 0, len(list)),
		byID:      make(map[string]int, len(list)),
	}
	for i, s := range list {
		if s.ID == "" {
			return nil, fmt.Errorf("scenario #%d: missing id", i)
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("scenario %q: duplicate id", s.ID)
		}
		if s.InitialMessage == "" {
			return nil, fmt.Errorf("scenario %q: missing initial message", s.ID)
		}
		if s.RequiredLevel < 1 {
			s.RequiredLevel = 1
		}
		s.Gender = ""
		c.byID[s.ID] = len(c.scenarios)
		c.scenarios = append(c.scenarios, s)
	}
	return c, nil
}

// Find 按 id 查找场景模板（返回值拷贝）。
func (c *Catalog) Find(id string) (model.Scenario, error) {
	i, ok := c.byID[id]
	if !ok {
		return model.Scenario{}, fmt.Errorf("%w: %s", ErrScenarioNotFound, id)
	}
	return c.scenarios[i], nil
}

// All 返回目录顺序的全部场景。
func (c *Catalog) All() []model.Scenario {
	out := make([]model.Scenario, len(c.scenarios))
	copy(out, c.scenarios)
	return out
}

// Unlocked 返回给定等级可游玩的场景。
func (c *Catalog) Unlocked(level int) []model.Scenario {
	var out []model.Scenario
	for _, s := range c.scenarios {
		if s.RequiredLevel <= level {
			out = append(out, s)
		}
	}
	return out
}

// Entries 返回带锁定标记的全部场景。
func (c *Catalog) Entries(level int) []Entry {
	out := make([]Entry, len(c.scenarios))
	for i, s := range c.scenarios {
		out[i] = Entry{Scenario: s, Locked: s.RequiredLevel > level}
	}
	return out
}

// Len 场景数量。
func (c *Catalog) Len() int { return len(c.scenarios) }
