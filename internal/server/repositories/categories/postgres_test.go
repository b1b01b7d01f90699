package categories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

var categoryCols = []string{"id", "name", "description", "is_active", "image_url", "display_order", "created_at", "updated_at", "product_count"}

func TestCreate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)INSERT INTO categories .*RETURNING id, created_at, updated_at`).
		WithArgs("Kitchen", "", true, "", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("cat-1", now, now))
	mock.ExpectQuery(`INSERT INTO categories`).WillReturnError(&pgconn.PgError{Code: "23505"})

	c, err := repo.Create(context.Background(), &models.Category{Name: "Kitchen", IsActive: true, DisplayOrder: 1})
	require.NoError(t, err)
	assert.Equal(t, "cat-1", c.ID)

	_, err = repo.Create(context.Background(), &models.Category{Name: "kitchen"})
	require.ErrorIs(t, err, common.ErrorConflict)
}

func TestGetByID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`WHERE c\.id = \$1`).WithArgs("cat-1").
		WillReturnRows(sqlmock.NewRows(categoryCols).AddRow("cat-1", "Kitchen", "", true, "", 0, now, now, 5))
	mock.ExpectQuery(`WHERE c\.id = \$1`).WithArgs("cat-x").WillReturnError(sql.ErrNoRows)

	c, err := repo.GetByID(context.Background(), "cat-1")
	require.NoError(t, err)
	assert.Equal(t, 5, c.ProductCount)

	_, err = repo.GetByID(context.Background(), "cat-x")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestNameTaken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM categories WHERE lower\(name\) = lower\(\$1\) AND id::text <> \$2\)`).
		WithArgs("KITCHEN", "").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	taken, err := repo.NameTaken(context.Background(), "KITCHEN", "")
	require.NoError(t, err)
	assert.True(t, taken)
}

func TestList(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`WHERE c\.is_active OR \$1 ORDER BY c\.display_order, c\.name`).WithArgs(false).
		WillReturnRows(sqlmock.NewRows(categoryCols).
			AddRow("cat-1", "Kitchen", "", true, "", 0, now, now, 1).
			AddRow("cat-2", "Garden", "", true, "", 1, now, now, 0))

	list, err := repo.List(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestUpdateAndDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE categories SET name = \$2`).WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectExec(`UPDATE categories SET is_active = \$2`).WithArgs("cat-1", false).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM categories WHERE id = \$1`).WithArgs("cat-9").WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, repo.Update(context.Background(), &models.Category{ID: "cat-1", Name: "Dup"}), common.ErrorConflict)
	require.NoError(t, repo.SetActive(context.Background(), "cat-1", false))
	require.ErrorIs(t, repo.Delete(context.Background(), "cat-9"), common.ErrorNotFound)
}
