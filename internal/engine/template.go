package engine

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/shaiso/Deployer/internal/domain"
)

// Context — контекст для рендеринга команд плана.
//
// Доступно в шаблонах:
//   - {{ .Environment }}, {{ .Version }}, {{ .Type }}
//   - {{ .Component }} — только для шагов компонентов
//   - {{ .StepID }}
//   - {{ .Env.VAR_NAME }}
type Context struct {
	Environment string            `json:"environment"`
	Version     string            `json:"version"`
	Type        string            `json:"type"`
	Component   string            `json:"component,omitempty"`
	StepID      string            `json:"step_id"`
	Env         map[string]string `json:"env"`
}

// NewContext создаёт контекст из конфигурации деплоя.
func NewContext(cfg *domain.DeploymentConfig) *Context {
	return &Context{
		Environment: string(cfg.Environment),
		Version:     cfg.Version,
		Type:        string(cfg.DeploymentType),
		Env:         make(map[string]string),
	}
}

// ForStep возвращает копию контекста для конкретного шага.
func (c *Context) ForStep(stepID, component string) *Context {
	cp := *c
	cp.StepID = stepID
	cp.Component = component
	return &cp
}

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	// default — возвращает значение по умолчанию, если второй аргумент пустой
	"default": func(def, val string) string {
		if val == "" {
			return def
		}
		return val
	},

	"join":      func(sep string, items []string) string { return strings.Join(items, sep) },
	"contains":  strings.Contains,
	"hasPrefix": strings.HasPrefix,
	"hasSuffix": strings.HasSuffix,
	"lower":     strings.ToLower,
	"upper":     strings.ToUpper,
	"trim":      strings.TrimSpace,
	"replace":   strings.ReplaceAll,

	// quote — экранирует значение для shell в одинарных кавычках
	"quote": func(s string) string {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	},
}

// Render рендерит строковый шаблон с контекстом.
//
//	./deploy.sh --env {{ .Environment }} --version {{ .Version }}
func Render(tmpl string, ctx *Context) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Funcs(templateFuncs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// RenderCommand рендерит все строковые поля команды.
func RenderCommand(cmd domain.Command, ctx *Context) (domain.Command, error) {
	var err error
	out := cmd

	fields := []*string{&out.Run, &out.URL, &out.Body, &out.WorkDir, &out.Duration}
	for _, f := range fields {
		if *f, err = Render(*f, ctx); err != nil {
			return domain.Command{}, err
		}
	}

	if cmd.Env != nil {
		out.Env = make(map[string]string, len(cmd.Env))
		for k, v := range cmd.Env {
			if out.Env[k], err = Render(v, ctx); err != nil {
				return domain.Command{}, err
			}
		}
	}

	return out, nil
}
