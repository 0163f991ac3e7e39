package domain

import "github.com/google/uuid"

// DemoTenant is a fixed tenant seeded outside production.
type DemoTenant struct {
	ID                uuid.UUID
	Name              string
	Subdomain         string
	APIKey            string
	Industry          string
	PaymentAccountRef string
}

var DemoTenants = []DemoTenant{
	{
		ID:                uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		Name:              "Demo Legal Platform",
		Subdomain:         "demo-legal",
		APIKey:            "demo-api-key-legal-12345",
		Industry:          IndustryLegal,
		PaymentAccountRef: "acct_demo_legal",
	},
	{
		ID:                uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		Name:              "Demo Healthcare Platform",
		Subdomain:         "demo-health",
		APIKey:            "demo-api-key-health-67890",
		Industry:          IndustryHealthcare,
		PaymentAccountRef: "acct_demo_health",
	},
}
