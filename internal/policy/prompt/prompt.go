// Package prompt holds the per-industry policy prompts.
package prompt

import (
	"embed"
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultTenantName   = "CompliGenie Partner"
	defaultAITools      = "AI Tools"
	defaultJurisdiction = "US"
)

//go:embed prompts/*.txt
var promptFS embed.FS

var files = map[string]string{
	"legal":      "legal_8page_comprehensive.txt",
	"healthcare": "healthcare_hipaa_focused.txt",
	"hr":         "hr_workplace_ai.txt",
	"insurance":  "insurance_risk_mitigation.txt",
	"general":    "general_business.txt",
}

// Vars are the values substituted into a prompt.
type Vars struct {
	CompanyName   string
	TenantName    string
	CompanySize   int
	AITools       []string
	Jurisdictions []string
}

// Load returns the raw prompt for industry.
func Load(industry string) (string, error) {
	name, ok := files[strings.ToLower(industry)]
	if !ok {
		return "", fmt.Errorf("no prompt for industry %q", industry)
	}
	b, err := promptFS.ReadFile("prompts/" + name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Enrich replaces the placeholders in tmpl.
func Enrich(tmpl string, v Vars) string {
	tenant := strings.TrimSpace(v.TenantName)
	if tenant == "" {
		tenant = DefaultTenantName
	}
	return strings.NewReplacer(
		"{AI_TOOLS_LIST}", joinOr(v.AITools, defaultAITools),
		"{COMPANY_SIZE}", strconv.Itoa(v.CompanySize),
		"{JURISDICTIONS}", joinOr(v.Jurisdictions, defaultJurisdiction),
		"{COMPANY_NAME}", v.CompanyName,
		"{TENANT_NAME}", tenant,
	).Replace(tmpl)
}

func joinOr(items []string, def string) string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return strings.Join(out, ", ")
}
