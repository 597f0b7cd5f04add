package flag

import (
	"github.com/smallbiznis/entitle/internal/flag/repository"
	"github.com/smallbiznis/entitle/internal/flag/service"
	"go.uber.org/fx"
)

var Module = fx.Module("flag.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
