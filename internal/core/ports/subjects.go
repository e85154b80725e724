package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
)

type SubjectReader interface {
	Get(ctx context.Context, tenantID uuid.UUID, kind domain.SubjectKind, id uuid.UUID) (domain.Subject, error)
	List(ctx context.Context, tenantID uuid.UUID, kind domain.SubjectKind, filter domain.SubjectListFilter) ([]domain.Subject, error)
}

type SubjectWriter interface {
	SubjectReader
	Insert(ctx context.Context, s domain.Subject) error
	Update(ctx context.Context, s domain.Subject) error
}

// UnitOfWork is the set of stores bound to one write transaction.
type UnitOfWork interface {
	Subjects() SubjectWriter
	Activities() ActivityAppender
}

// Transactor runs fn inside one write transaction. Any error returned by
// fn, or a cancelled ctx, rolls back every write made through uow.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}
