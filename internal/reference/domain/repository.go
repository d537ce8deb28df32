package domain

import "context"

type Repository interface {
	ListCurrencies(ctx context.Context) ([]Currency, error)
	ListTimezones(ctx context.Context) ([]Timezone, error)
	CurrencyExists(ctx context.Context, code string) (bool, error)
	TimezoneExists(ctx context.Context, name string) (bool, error)
}
