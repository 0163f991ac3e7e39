package generator

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	policydomain "github.com/jamesbarnes665/compliGenie-backend/internal/policy/domain"
	"go.uber.org/zap"
)

//go:embed templates/sections.json
var templateFS embed.FS

type sectionTemplate struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type generatedDocument struct {
	Title    string                 `json:"title"`
	Sections []policydomain.Section `json:"sections"`
}

// TemplateGenerator answers generation requests from embedded section
// templates. It stands in for a language model and is deterministic.
type TemplateGenerator struct {
	log      *zap.Logger
	sections map[string][]sectionTemplate
}

func NewTemplateGenerator(log *zap.Logger) (*TemplateGenerator, error) {
	raw, err := templateFS.ReadFile("templates/sections.json")
	if err != nil {
		return nil, err
	}
	var sections map[string][]sectionTemplate
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil, fmt.Errorf("parse section templates: %w", err)
	}
	if len(sections["common"]) == 0 {
		return nil, fmt.Errorf("section templates: missing common sections")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TemplateGenerator{log: log.Named("policy.generator"), sections: sections}, nil
}

func (g *TemplateGenerator) Generate(ctx context.Context, req policydomain.GenerationRequest) (policydomain.GenerationResponse, error) {
	if err := ctx.Err(); err != nil {
		return policydomain.GenerationResponse{}, err
	}

	industry := strings.ToLower(strings.TrimSpace(req.Industry))
	if industry == "" {
		industry = policydomain.IndustryGeneral
	}
	replacer := strings.NewReplacer(
		"{INDUSTRY}", industry,
		"{COMPANY_NAME}", req.ClientName,
	)

	templates := append([]sectionTemplate{}, g.sections["common"]...)
	templates = append(templates, g.sections[industry]...)

	doc := generatedDocument{
		Title:    fmt.Sprintf("%s - %s Industry", policydomain.DefaultTitle, strings.ToUpper(industry)),
		Sections: make([]policydomain.Section, 0, len(templates)),
	}
	for i, tmpl := range templates {
		doc.Sections = append(doc.Sections, policydomain.Section{
			Title:   tmpl.Title,
			Content: replacer.Replace(tmpl.Content),
			Order:   i + 1,
		})
	}

	content, err := json.Marshal(doc)
	if err != nil {
		return policydomain.GenerationResponse{}, err
	}

	g.log.Debug("generated policy content",
		zap.String("industry", industry),
		zap.Int("sections", len(doc.Sections)),
		zap.Int("prompt_length", len(req.Prompt)),
	)
	return policydomain.GenerationResponse{
		Content:    string(content),
		TokensUsed: len(strings.Fields(req.Prompt)) + len(strings.Fields(string(content))),
	}, nil
}
