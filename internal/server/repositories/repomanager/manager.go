package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/hostelpay/internal/dbx"
	"github.com/dmitrijs2005/hostelpay/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/hostelpay/internal/server/repositories/payments"
	"github.com/dmitrijs2005/hostelpay/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/hostelpay/internal/server/repositories/tokens"
)

// RepositoryManager vends repositories bound to a DBTX so that services can
// run several of them inside one transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Tokens(db dbx.DBTX) tokens.Repository
	Payments(db dbx.DBTX) payments.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
