package gormstore

import (
	"context"

	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/activitylog/internal/adapters/gormstore/gormdb"
	"github.com/atvirokodosprendimai/activitylog/internal/core/ports"
)

type Transactor struct {
	db *gormdb.DB
}

func NewTransactor(db *gormdb.DB) *Transactor {
	return &Transactor{db: db}
}

// WithinTx runs fn in one write transaction. Returning an error, or the
// context being cancelled before commit, rolls back every write.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, uow ports.UnitOfWork) error) error {
	return t.db.WriteTX(ctx, func(tx *gormdb.Tx) error {
		if err := fn(ctx, unitOfWork{tx: tx.DB, lock: t.db.Driver() == gormdb.DriverPostgres}); err != nil {
			return err
		}
		return ctx.Err()
	})
}

type unitOfWork struct {
	tx   *gorm.DB
	lock bool
}

func (u unitOfWork) Subjects() ports.SubjectWriter {
	return txSubjects{tx: u.tx, lock: u.lock}
}

func (u unitOfWork) Activities() ports.ActivityAppender {
	return txActivities{tx: u.tx}
}

var _ ports.Transactor = (*Transactor)(nil)
