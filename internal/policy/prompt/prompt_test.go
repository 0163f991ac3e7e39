package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEveryIndustry(t *testing.T) {
	for industry := range files {
		t.Run(industry, func(t *testing.T) {
			tmpl, err := Load(industry)
			require.NoError(t, err)
			assert.Contains(t, tmpl, "{COMPANY_NAME}")
			assert.Contains(t, tmpl, "{TENANT_NAME}")
		})
	}
}

func TestLoadUnknownIndustry(t *testing.T) {
	_, err := Load("aerospace")
	assert.Error(t, err)
}

func TestEnrich(t *testing.T) {
	out := Enrich("{COMPANY_NAME}|{TENANT_NAME}|{AI_TOOLS_LIST}|{COMPANY_SIZE}|{JURISDICTIONS}", Vars{
		CompanyName:   "Acme",
		TenantName:    "Demo Legal Platform",
		CompanySize:   120,
		AITools:       []string{"ChatGPT", " ", "Claude"},
		Jurisdictions: []string{"US", "EU"},
	})
	assert.Equal(t, "Acme|Demo Legal Platform|ChatGPT, Claude|120|US, EU", out)
}

func TestEnrichDefaults(t *testing.T) {
	out := Enrich("{TENANT_NAME}|{AI_TOOLS_LIST}|{JURISDICTIONS}", Vars{})
	assert.Equal(t, "CompliGenie Partner|AI Tools|US", out)
}
