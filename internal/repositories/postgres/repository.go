package postgres

import (
	"context"

	"github.com/aetuition/testing-service/internal/repositories"
	"gorm.io/gorm"
)

// GormRepository is the PostgreSQL-backed repository aggregate. A repository
// created by Begin routes every sub-repository through the same transaction.
type GormRepository struct {
	db       *gorm.DB
	test     *TestPostgreSQL
	attempt  *AttemptPostgreSQL
	response *ResponsePostgreSQL
	result   *ResultPostgreSQL
	session  *SessionPostgreSQL
	activity *ActivityPostgreSQL
}

func NewRepository(db *gorm.DB) repositories.TransactionRepository {
	return &GormRepository{
		db:       db,
		test:     &TestPostgreSQL{db: db},
		attempt:  &AttemptPostgreSQL{db: db},
		response: &ResponsePostgreSQL{db: db},
		result:   &ResultPostgreSQL{db: db},
		session:  &SessionPostgreSQL{db: db},
		activity: &ActivityPostgreSQL{db: db},
	}
}

func (r *GormRepository) Test() repositories.TestRepository         { return r.test }
func (r *GormRepository) Attempt() repositories.AttemptRepository   { return r.attempt }
func (r *GormRepository) Response() repositories.ResponseRepository { return r.response }
func (r *GormRepository) Result() repositories.ResultRepository     { return r.result }
func (r *GormRepository) Session() repositories.SessionRepository   { return r.session }
func (r *GormRepository) Activity() repositories.ActivityRepository { return r.activity }

func (r *GormRepository) Begin(ctx context.Context) (repositories.TransactionRepository, error) {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return NewRepository(tx), nil
}

func (r *GormRepository) Commit(ctx context.Context) error {
	return r.db.Commit().Error
}

func (r *GormRepository) Rollback(ctx context.Context) error {
	return r.db.Rollback().Error
}
