package providers

import (
	"github.com/jamesbarnes665/compliGenie-backend/internal/providers/email"
	"github.com/jamesbarnes665/compliGenie-backend/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
