package policy

import (
	policydomain "github.com/jamesbarnes665/compliGenie-backend/internal/policy/domain"
	"github.com/jamesbarnes665/compliGenie-backend/internal/policy/generator"
	"github.com/jamesbarnes665/compliGenie-backend/internal/policy/repository"
	"github.com/jamesbarnes665/compliGenie-backend/internal/policy/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("policy",
	fx.Provide(repository.Provide),
	fx.Provide(NewGenerator),
	fx.Provide(service.New),
)

func NewGenerator(log *zap.Logger) (policydomain.Generator, error) {
	return generator.NewTemplateGenerator(log)
}
