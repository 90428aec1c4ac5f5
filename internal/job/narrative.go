package job

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/raid-tracker/internal/models"
)

// NarrativeInput is the data a narrative is generated from
type NarrativeInput struct {
	Profile    *models.CharacterProfile
	Statistics *models.CharacterStatistics
}

// NarrativeGenerator produces the text summary of a character
type NarrativeGenerator interface {
	Generate(ctx context.Context, input *NarrativeInput) (string, error)
}

const narrativeTemplate = `{{.Name}}{{with .Descriptor}} is a {{.}}{{end}}{{with .Guild}} of <{{.}}>{{end}}.
{{- if .Raid}} Ranked on {{.Stats.EncountersRanked}} encounters with {{.Stats.HeroicKills}} heroic and {{.Stats.MythicKills}} mythic kills{{with .Best}}, best parse {{.}}{{end}}{{with .Average}} (average {{.}}){{end}}.{{else}} No raid rankings recorded yet.{{end}}
{{- if .Stats.DungeonRuns}} Completed {{.Stats.DungeonRuns}} keystone runs, {{.Stats.TimedRuns}} in time, up to +{{.Stats.HighestKeyLevel}}{{with .TopScore}}, peaking at {{.}} rating{{end}}.{{end}}
{{- if .Stats.AchievementPoints}} Holds {{.Stats.AchievementPoints}} achievement points.{{end}}`

// TemplateNarrator renders a deterministic summary from a text template
type TemplateNarrator struct {
	tmpl *template.Template
}

// NewTemplateNarrator creates the default narrative generator
func NewTemplateNarrator() *TemplateNarrator {
	return &TemplateNarrator{tmpl: template.Must(template.New("narrative").Parse(narrativeTemplate))}
}

type narrativeView struct {
	Name       string
	Descriptor string
	Guild      string
	Stats      *models.CharacterStatistics
	Raid       bool
	Best       string
	Average    string
	TopScore   string
}

// Generate renders the summary; a missing profile falls back to "Unknown character"
func (n *TemplateNarrator) Generate(_ context.Context, input *NarrativeInput) (string, error) {
	if input == nil || input.Statistics == nil {
		return "", fmt.Errorf("narrative input requires statistics")
	}

	view := narrativeView{Name: "Unknown character", Stats: input.Statistics}
	if p := input.Profile; p != nil {
		view.Name = p.Name
		var parts []string
		if p.Level > 0 {
			parts = append(parts, fmt.Sprintf("level %d", p.Level))
		}
		if p.ActiveSpec != nil && *p.ActiveSpec != "" {
			parts = append(parts, *p.ActiveSpec)
		}
		if p.Class != nil && *p.Class != "" {
			parts = append(parts, *p.Class)
		}
		view.Descriptor = strings.Join(parts, " ")
		if p.Guild != nil {
			view.Guild = *p.Guild
		}
	}

	stats := input.Statistics
	view.Raid = stats.EncountersRanked > 0
	if stats.BestRaidPercent != nil {
		view.Best = fmt.Sprintf("%.1f", *stats.BestRaidPercent)
	}
	if stats.AverageRaidPercent != nil {
		view.Average = fmt.Sprintf("%.1f", *stats.AverageRaidPercent)
	}
	var top float64
	for _, s := range stats.SeasonScores {
		if s.Score > top {
			top = s.Score
		}
	}
	if top > 0 {
		view.TopScore = fmt.Sprintf("%.0f", top)
	}

	var buf bytes.Buffer
	if err := n.tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to render narrative: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
