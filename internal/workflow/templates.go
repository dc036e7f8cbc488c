package workflow

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	xerrors "AgentPlane/internal/errors"
)

//go:embed templates.yaml
var templatesYAML []byte

// Template 是内置的工作流模板，智能体可以直接套用。
type Template struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Tags        []string `json:"tags" yaml:"tags"`
	Steps       []string `json:"steps" yaml:"steps"`
}

type templateCatalog struct {
	Templates []Template `yaml:"templates"`
}

var (
	templatesOnce sync.Once
	templates     []Template
	templatesErr  error
)

func loadTemplates() ([]Template, error) {
	templatesOnce.Do(func() {
		var catalog templateCatalog
		if err := yaml.Unmarshal(templatesYAML, &catalog); err != nil {
			templatesErr = xerrors.Wrap(err, xerrors.CodeInitializationFailure, "parse workflow templates")
			return
		}
		templates = catalog.Templates
	})
	return templates, templatesErr
}

// Templates 返回全部内置模板。
func Templates() ([]Template, error) {
	return loadTemplates()
}

// TemplateByName 按名称查找模板。
func TemplateByName(name string) (*Template, error) {
	all, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Name == name {
			return &all[i], nil
		}
	}
	return nil, xerrors.New(xerrors.CodeNotFound, "workflow template not found",
		xerrors.WithMetadata(map[string]any{"template": name}))
}

// TemplatesByTag 按标签过滤模板。
func TemplatesByTag(tag string) ([]Template, error) {
	all, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	var matched []Template
	for _, template := range all {
		for _, candidate := range template.Tags {
			if candidate == tag {
				matched = append(matched, template)
				break
			}
		}
	}
	return matched, nil
}

// AsDefinition 把模板的步骤渲染成可直接创建的工作流定义文本。
func (t *Template) AsDefinition() string {
	var sb strings.Builder
	for i, step := range t.Steps {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, step)
	}
	return strings.TrimRight(sb.String(), "\n")
}
