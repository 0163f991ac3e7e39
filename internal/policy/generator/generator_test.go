package generator

import (
	"context"
	"testing"

	policydomain "github.com/jamesbarnes665/compliGenie-backend/internal/policy/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTemplateGeneratorIndustrySections(t *testing.T) {
	g, err := NewTemplateGenerator(zap.NewNop())
	require.NoError(t, err)

	cases := []struct {
		industry string
		sections int
	}{
		{industry: "general", sections: 8},
		{industry: "legal", sections: 10},
		{industry: "healthcare", sections: 10},
		{industry: "hr", sections: 9},
		{industry: "insurance", sections: 9},
	}
	for _, tc := range cases {
		t.Run(tc.industry, func(t *testing.T) {
			resp, err := g.Generate(context.Background(), policydomain.GenerationRequest{
				Industry:   tc.industry,
				ClientName: "Acme",
				Prompt:     "draft a policy",
			})
			require.NoError(t, err)

			title, sections, err := Parse(resp.Content)
			require.NoError(t, err)
			assert.Contains(t, title, policydomain.DefaultTitle)
			require.Len(t, sections, tc.sections)
			for i, s := range sections {
				assert.Equal(t, i+1, s.Order)
				assert.NotContains(t, s.Content, "{INDUSTRY}")
				assert.NotContains(t, s.Content, "{COMPANY_NAME}")
			}
			assert.Contains(t, sections[0].Content, "Acme")
		})
	}
}

func TestTemplateGeneratorHonoursCancellation(t *testing.T) {
	g, err := NewTemplateGenerator(zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Generate(ctx, policydomain.GenerationRequest{Industry: "legal"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParsePlainTextFallback(t *testing.T) {
	text := "Preamble that is dropped\n# Purpose\nWhy we have this.\n\n2. Scope\nEveryone.\nContractors too.\n"

	title, sections, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, policydomain.DefaultTitle, title)
	require.Len(t, sections, 2)
	assert.Equal(t, policydomain.Section{Title: "# Purpose", Content: "Why we have this.", Order: 1}, sections[0])
	assert.Equal(t, policydomain.Section{Title: "2. Scope", Content: "Everyone.\nContractors too.", Order: 2}, sections[1])
}

func TestParseUnstructuredText(t *testing.T) {
	title, sections, err := Parse("just a paragraph of text")
	require.NoError(t, err)
	assert.Equal(t, policydomain.DefaultTitle, title)
	require.Len(t, sections, 1)
	assert.Equal(t, "just a paragraph of text", sections[0].Content)
}

func TestParseEmpty(t *testing.T) {
	_, _, err := Parse("  \n ")
	assert.ErrorIs(t, err, policydomain.ErrEmptyContent)
}

func TestPageCount(t *testing.T) {
	assert.Equal(t, 8, PageCount(0))
	assert.Equal(t, 8, PageCount(2000))
	assert.Equal(t, 9, PageCount(2001))
	assert.Equal(t, 12, PageCount(3000))
}
