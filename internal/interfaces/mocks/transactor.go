package mocks

import (
	"context"

	"tale-server/internal/interfaces"

	"github.com/stretchr/testify/mock"
)

// Mock Transactor. RunFn позволяет тесту выполнить переданную функцию
// с подставным querier вместо настоящей транзакции.
type Transactor struct {
	mock.Mock
	Querier interfaces.DBTX
}

func (m *Transactor) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.DBTX) error) error {
	args := m.Called(ctx, fn)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(ctx, m.Querier)
}
