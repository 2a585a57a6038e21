package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/tribune/pkg/cli"
	"mercator-hq/tribune/pkg/policy/ast"
	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/template"
)

var templateFlags struct {
	category    string
	name        string
	params      []string
	policyName  string
	description string
	format      string
}

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "List and render policy templates",
	Long: `List the built-in policy templates or render one into a policy.

Examples:
  # List templates
  tribune template list

  # Render a template with parameters
  tribune template render --name "PKI Certificate Policy" --param min_key_size=4096 \
    --param allowed_algorithms=RSA,ECDSA`,
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available templates",
	RunE:  listTemplates,
}

var templateRenderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a template into a policy",
	RunE:  renderTemplate,
}

func init() {
	rootCmd.AddCommand(templateCmd)
	templateCmd.AddCommand(templateListCmd, templateRenderCmd)

	templateCmd.PersistentFlags().StringVar(&templateFlags.format, "format", "text", "output format: text, json, yaml")
	templateListCmd.Flags().StringVar(&templateFlags.category, "category", "", "only list templates in this category")
	templateRenderCmd.Flags().StringVarP(&templateFlags.name, "name", "n", "", "template name")
	templateRenderCmd.Flags().StringArrayVarP(&templateFlags.params, "param", "p", nil, "template parameter as key=value (repeatable)")
	templateRenderCmd.Flags().StringVar(&templateFlags.policyName, "policy-name", "", "name of the rendered policy (default: the template name)")
	templateRenderCmd.Flags().StringVar(&templateFlags.description, "description", "", "description of the rendered policy")
}

// TemplateInfo describes a template and its parameters.
type TemplateInfo struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	Category    string          `json:"category" yaml:"category"`
	Tags        []string        `json:"tags,omitempty" yaml:"tags,omitempty"`
	Parameters  []ParameterInfo `json:"parameters" yaml:"parameters"`
}

// ParameterInfo describes one template parameter.
type ParameterInfo struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Required    bool   `json:"required" yaml:"required"`
	Default     string `json:"default,omitempty" yaml:"default,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// TemplateList is the result of template list.
type TemplateList []TemplateInfo

// RenderedPolicy is the result of template render.
type RenderedPolicy struct {
	Name             string         `json:"name" yaml:"name"`
	Description      string         `json:"description,omitempty" yaml:"description,omitempty"`
	Template         string         `json:"template" yaml:"template"`
	EnforcementLevel string         `json:"enforcement_level" yaml:"enforcement_level"`
	Rules            []RenderedRule `json:"rules" yaml:"rules"`
}

// RenderedRule is one rule of a rendered policy.
type RenderedRule struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Severity   string `json:"severity" yaml:"severity"`
	Expression string `json:"expression" yaml:"expression"`
}

func listTemplates(cmd *cobra.Command, args []string) error {
	engine := template.NewEngine()
	templates := engine.List()
	if templateFlags.category != "" {
		templates = engine.ByCategory(templateFlags.category)
	}

	list := make(TemplateList, 0, len(templates))
	for _, t := range templates {
		info := TemplateInfo{
			Name:        t.Name,
			Description: t.Description,
			Category:    t.Category,
			Tags:        t.Tags,
		}
		for _, p := range t.Parameters {
			pi := ParameterInfo{
				Name:        p.Name,
				Type:        string(p.Type),
				Required:    p.Required,
				Description: p.Description,
			}
			if p.Default != nil {
				pi.Default = p.Default.String()
			}
			info.Parameters = append(info.Parameters, pi)
		}
		list = append(list, info)
	}
	return printResult(templateFlags.format, list)
}

func renderTemplate(cmd *cobra.Command, args []string) error {
	if templateFlags.name == "" {
		return cli.NewConfigError("--name", "a template name is required")
	}

	engine := template.NewEngine()
	t, err := engine.Get(templateFlags.name)
	if err != nil {
		return cli.NewCommandError("template render", err)
	}
	params, err := parseParams(t, templateFlags.params)
	if err != nil {
		return err
	}

	name := templateFlags.policyName
	if name == "" {
		name = t.Name
	}
	policy, err := engine.Instantiate(t.Name, params, name, templateFlags.description)
	if err != nil {
		return cli.NewCommandError("template render", err)
	}
	return printResult(templateFlags.format, renderedPolicy(t, policy))
}

// parseParams converts key=value flags to values of the declared types.
func parseParams(t *template.Template, raw []string) (map[string]ast.Value, error) {
	params := make(map[string]ast.Value, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, cli.NewConfigError("--param", fmt.Sprintf("%q is not key=value", kv))
		}
		p, ok := t.Parameter(key)
		if !ok {
			return nil, cli.NewConfigError("--param", fmt.Sprintf("template %q has no parameter %q", t.Name, key))
		}
		v, err := p.Type.Parse(value)
		if err != nil {
			return nil, cli.NewConfigError("--param", fmt.Sprintf("%s: %v", key, err))
		}
		params[key] = v
	}
	return params, nil
}

func renderedPolicy(t *template.Template, policy *domain.Policy) *RenderedPolicy {
	out := &RenderedPolicy{
		Name:             policy.Name,
		Description:      policy.Description,
		Template:         t.Name,
		EnforcementLevel: policy.EnforcementLevel.String(),
	}
	for _, rule := range policy.Rules {
		out.Rules = append(out.Rules, RenderedRule{
			ID:         rule.ID,
			Name:       rule.Name,
			Severity:   rule.Severity.String(),
			Expression: rule.Expression.String(),
		})
	}
	return out
}

// RenderText prints the templates for a terminal.
func (l TemplateList) RenderText(w io.Writer) error {
	for _, t := range l {
		fmt.Fprintf(w, "%s [%s]\n", t.Name, t.Category)
		if t.Description != "" {
			fmt.Fprintf(w, "  %s\n", t.Description)
		}
		for _, p := range t.Parameters {
			flag := ""
			if p.Required {
				flag = " (required)"
			} else if p.Default != "" {
				flag = " (default " + p.Default + ")"
			}
			fmt.Fprintf(w, "    %s %s%s\n", p.Name, p.Type, flag)
		}
	}
	return nil
}

// RenderText prints the rendered policy for a terminal.
func (p *RenderedPolicy) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "%s (from %s, %s)\n", p.Name, p.Template, p.EnforcementLevel)
	for _, r := range p.Rules {
		fmt.Fprintf(w, "  %s [%s] %s\n", r.ID, r.Severity, r.Expression)
	}
	return nil
}
