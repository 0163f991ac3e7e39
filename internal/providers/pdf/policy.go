package pdf

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jamesbarnes665/compliGenie-backend/internal/observability/logger"
	policydomain "github.com/jamesbarnes665/compliGenie-backend/internal/policy/domain"
	tenantdomain "github.com/jamesbarnes665/compliGenie-backend/internal/tenant/domain"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenantcontext"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"go.uber.org/zap"
)

var defaultPrimary = props.Color{Red: 0, Green: 0, Blue: 0}

// RenderPolicy renders doc for the tenant bound to ctx. A document owned by
// any other tenant is refused with ErrForbidden.
func (p *PDFProvider) RenderPolicy(ctx context.Context, doc *policydomain.Document, branding *tenantdomain.TenantBranding) ([]byte, error) {
	current, err := tenantcontext.Require(ctx)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, policydomain.ErrNotFound
	}
	if doc.TenantID != current.ID {
		p.metrics.RecordCrossTenantDenied(ctx, "policy_pdf")
		logger.WithContext(ctx, p.log).Warn("refused to render policy owned by another tenant",
			zap.String("policy_id", doc.ID.String()),
		)
		return nil, ErrForbidden
	}

	companyName := current.DisplayName
	footer := ""
	primary := defaultPrimary
	if branding != nil {
		if strings.TrimSpace(branding.CompanyName) != "" {
			companyName = branding.CompanyName
		}
		footer = branding.FooterText
		if c, ok := parseHexColor(branding.PrimaryColor); ok {
			primary = c
		}
	}
	if footer == "" && companyName != "" {
		footer = "Prepared by " + companyName
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		WithTitle(doc.Title, true).
		WithAuthor(companyName, true).
		WithCreationDate(doc.GeneratedAt).
		Build()

	m := maroto.New(cfg)
	if footer != "" {
		if err := m.RegisterFooter(row.New(10).Add(
			text.NewCol(8, footer, props.Text{Size: 8, Align: align.Left, Top: 3}),
		)); err != nil {
			return nil, fmt.Errorf("register footer: %w", err)
		}
	}

	if companyName != "" {
		m.AddRow(10,
			text.NewCol(12, companyName, props.Text{
				Size:  10,
				Style: fontstyle.Bold,
				Align: align.Right,
				Color: &primary,
			}),
		)
	}

	m.AddRow(16,
		text.NewCol(12, doc.Title, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
			Color: &primary,
		}),
	)
	m.AddRow(14,
		text.NewCol(12, fmt.Sprintf("Prepared for %s", doc.ClientName), props.Text{Size: 11, Top: 2}),
	)
	m.AddRow(8,
		text.NewCol(6, "Version "+doc.Version, props.Text{Size: 9}),
		text.NewCol(6, "Generated "+doc.GeneratedAt.UTC().Format("January 2, 2006"), props.Text{Size: 9, Align: align.Right}),
	)

	for _, section := range doc.Sections {
		m.AddRow(12,
			text.NewCol(12, section.Title, props.Text{
				Size:  13,
				Style: fontstyle.Bold,
				Top:   4,
				Color: &primary,
			}),
		)
		for _, paragraph := range paragraphs(section.Content) {
			m.AddAutoRow(text.NewCol(12, paragraph, props.Text{Size: 10, Bottom: 3}))
		}
	}

	out, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate policy pdf: %w", err)
	}

	p.metrics.RecordDocumentRendered(ctx, "pdf")
	return out.GetBytes(), nil
}

func paragraphs(content string) []string {
	parts := strings.Split(content, "\n\n")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseHexColor(raw string) (props.Color, bool) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "#")
	if len(raw) != 6 {
		return props.Color{}, false
	}
	v, err := strconv.ParseUint(raw, 16, 32)
	if err != nil {
		return props.Color{}, false
	}
	return props.Color{
		Red:   int(v >> 16 & 0xff),
		Green: int(v >> 8 & 0xff),
		Blue:  int(v & 0xff),
	}, true
}
