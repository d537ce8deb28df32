package providers

import (
	"github.com/smallbiznis/duno/internal/providers/email"
	"github.com/smallbiznis/duno/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
