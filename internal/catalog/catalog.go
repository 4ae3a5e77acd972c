// Package catalog resolves stored dork templates against a concrete target
// into the ordered work items a scan executes. Templates carry a
// platform-specific placeholder ({{DOMAIN}} for Google, {{ORG}} for GitHub)
// that the catalog substitutes according to the target kind.
package catalog

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/raysh454/dorkrecon/internal/logging"
)

//go:embed templates.json
var templatesFS embed.FS

// Platform identifiers. Kept as plain strings in storage and over the wire.
const (
	PlatformGoogle = "google"
	PlatformGitHub = "github"
)

// Placeholder tokens recognized in template text.
const (
	placeholderDomain = "{{DOMAIN}}"
	placeholderOrg    = "{{ORG}}"
)

// TargetKind tells the catalog how to substitute placeholders.
type TargetKind string

const (
	TargetDomain       TargetKind = "domain"
	TargetOrganization TargetKind = "organization"
)

// KindOf guesses the target kind the way the scan intake does: anything with
// a dot is treated as a domain, everything else as an organization name.
func KindOf(target string) TargetKind {
	if strings.Contains(target, ".") {
		return TargetDomain
	}
	return TargetOrganization
}

// Dork is one stored search template.
type Dork struct {
	ID       int64  `json:"id,omitempty"`
	Platform string `json:"platform"`
	Category string `json:"category"`
	Template string `json:"template"`
}

// WorkItem is one platform+category+resolved-query triple, consumed exactly
// once by the orchestrator. Immutable once produced.
type WorkItem struct {
	Platform string `json:"platform"`
	Category string `json:"category"`
	Template string `json:"template"`
	Query    string `json:"query"`
}

// Source supplies raw templates in insertion order. Implemented by the
// durable store.
type Source interface {
	ListDorks(ctx context.Context, platform string) ([]Dork, error)
	ListCategories(ctx context.Context, platform string) ([]string, error)
}

// Catalog turns stored templates into resolved work items.
type Catalog struct {
	src    Source
	logger logging.Logger
}

// New creates a catalog over a template source.
func New(src Source, logger logging.Logger) *Catalog {
	return &Catalog{
		src:    src,
		logger: logger.With(logging.Field{Key: "component", Value: "catalog"}),
	}
}

// WorkItems lists the resolved work items for one platform and target.
// A non-empty category set keeps only templates whose category is a member;
// template insertion order is preserved either way.
func (c *Catalog) WorkItems(ctx context.Context, platform, target string, kind TargetKind, categories []string) ([]WorkItem, error) {
	dorks, err := c.src.ListDorks(ctx, platform)
	if err != nil {
		return nil, fmt.Errorf("listing dorks for %s: %w", platform, err)
	}

	var wanted map[string]bool
	if len(categories) > 0 {
		wanted = make(map[string]bool, len(categories))
		for _, cat := range categories {
			wanted[cat] = true
		}
	}

	items := make([]WorkItem, 0, len(dorks))
	for _, d := range dorks {
		if wanted != nil && !wanted[d.Category] {
			continue
		}
		items = append(items, WorkItem{
			Platform: d.Platform,
			Category: d.Category,
			Template: d.Template,
			Query:    Resolve(platform, d.Template, target, kind),
		})
	}
	return items, nil
}

// Categories lists the distinct categories for a platform, sorted.
func (c *Catalog) Categories(ctx context.Context, platform string) ([]string, error) {
	return c.src.ListCategories(ctx, platform)
}

// Resolve substitutes the placeholder in a template for the given target.
//
// Google templates are domain-scoped: {{DOMAIN}} is replaced verbatim with
// the target. GitHub templates are organization-scoped: for an organization
// target {{ORG}} is replaced verbatim; for a domain target the placeholder is
// stripped and the domain appended, shifting the query from org-scoped to
// full-text. Template text without a placeholder passes through unchanged.
func Resolve(platform, template, target string, kind TargetKind) string {
	switch platform {
	case PlatformGoogle:
		return strings.ReplaceAll(template, placeholderDomain, target)
	case PlatformGitHub:
		if kind == TargetOrganization {
			return strings.ReplaceAll(template, placeholderOrg, target)
		}
		if !strings.Contains(template, placeholderOrg) {
			return template
		}
		stripped := strings.TrimSpace(strings.ReplaceAll(template, placeholderOrg, ""))
		return fmt.Sprintf("%s %s", stripped, target)
	}
	return template
}

// DefaultDorks returns the built-in template set used to seed an empty dork
// store. The set mirrors data/dork_templates.json.
func DefaultDorks() ([]Dork, error) {
	raw, err := templatesFS.ReadFile("templates.json")
	if err != nil {
		return nil, fmt.Errorf("reading embedded templates: %w", err)
	}

	var file struct {
		Google []Dork `json:"google"`
		GitHub []Dork `json:"github"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing embedded templates: %w", err)
	}

	out := make([]Dork, 0, len(file.Google)+len(file.GitHub))
	for _, d := range file.Google {
		d.Platform = PlatformGoogle
		out = append(out, d)
	}
	for _, d := range file.GitHub {
		d.Platform = PlatformGitHub
		out = append(out, d)
	}
	return out, nil
}
