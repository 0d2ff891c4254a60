package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tilebank/backend/internal/models"
)

var bidTestColumns = []string{
	"id", "bidder", "tx", "x", "y", "content", "amount", "created_at", "published_at", "rejection",
}

func newBookTest(t *testing.T) (*BookService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBookService(db, zap.NewNop(), 7*24*time.Hour), mock
}

func bidRow(id, bidder, tx uuid.UUID, x, y int32, amount int64) *sqlmock.Rows {
	return sqlmock.NewRows(bidTestColumns).AddRow(
		id, bidder, tx, x, y, []byte(`{}`), amount, time.Now(), nil, nil,
	)
}

func TestRecordBid(t *testing.T) {
	book, mock := newBookTest(t)

	sender := uuid.New()
	txID := uuid.New()
	tx := models.Transaction{ID: &txID, Sender: &sender, ReceiverSys: models.StrPtr("tile:2:3"), ConsumedValue: 5}
	coords := models.Coords{X: 2, Y: 3}
	content := models.BidContent{Title: models.StrPtr("hello")}

	bidID := uuid.New()
	mock.ExpectQuery("INSERT INTO bids").
		WithArgs(sender, txID, coords.X, coords.Y, sqlmock.AnyArg(), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(bidID, time.Now()))

	bid, err := book.RecordBid(context.Background(), &tx, coords, content, tx.Total())
	require.NoError(t, err)

	assert.Equal(t, bidID, bid.ID)
	assert.Equal(t, sender, bid.Bidder)
	assert.Equal(t, txID, bid.Tx)
	assert.Equal(t, coords, bid.Coords())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEarmarked(t *testing.T) {
	txID := uuid.New()
	tx := models.Transaction{ID: &txID}

	t.Run("unbound transaction", func(t *testing.T) {
		book, mock := newBookTest(t)

		mock.ExpectQuery("SELECT(.+)FROM bids WHERE tx").
			WithArgs(txID).
			WillReturnRows(sqlmock.NewRows(bidTestColumns))

		bid, err := book.GetEarmarked(context.Background(), &tx)
		require.NoError(t, err)
		assert.Nil(t, bid)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already earmarked", func(t *testing.T) {
		book, mock := newBookTest(t)

		mock.ExpectQuery("SELECT(.+)FROM bids WHERE tx").
			WithArgs(txID).
			WillReturnRows(bidRow(uuid.New(), uuid.New(), txID, 1, 1, 5))

		bid, err := book.GetEarmarked(context.Background(), &tx)
		require.NoError(t, err)
		require.NotNil(t, bid)
		assert.Equal(t, txID, bid.Tx)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRescindBid(t *testing.T) {
	bidder := uuid.New()
	bid := models.Bid{ID: uuid.New(), Bidder: bidder}

	t.Run("deletes a pending bid", func(t *testing.T) {
		book, mock := newBookTest(t)

		mock.ExpectExec("DELETE FROM bids").
			WithArgs(bid.ID, bidder).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, book.RescindBid(context.Background(), &bid, bidder))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("published or foreign bids stay put", func(t *testing.T) {
		book, mock := newBookTest(t)

		mock.ExpectExec("DELETE FROM bids").
			WithArgs(bid.ID, bidder).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := book.RescindBid(context.Background(), &bid, bidder)
		assert.ErrorIs(t, err, ErrBidNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMarkAsPublished(t *testing.T) {
	t.Run("stamps the bid and occupies the tile", func(t *testing.T) {
		book, mock := newBookTest(t)

		bid := models.Bid{ID: uuid.New(), X: 4, Y: 5}
		publishedAt := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE bids SET published_at").
			WithArgs(bid.ID).
			WillReturnRows(sqlmock.NewRows([]string{"published_at"}).AddRow(publishedAt))
		mock.ExpectExec("INSERT INTO published_tiles").
			WithArgs(bid.X, bid.Y, bid.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, book.MarkAsPublished(context.Background(), &bid))
		require.NotNil(t, bid.PublishedAt)
		assert.Equal(t, publishedAt, *bid.PublishedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("published bids are a no-op", func(t *testing.T) {
		book, mock := newBookTest(t)

		now := time.Now()
		bid := models.Bid{ID: uuid.New(), PublishedAt: &now}

		require.NoError(t, book.MarkAsPublished(context.Background(), &bid))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUnpublish(t *testing.T) {
	bid := models.Bid{ID: uuid.New(), X: 1, Y: 1}

	t.Run("vacates the tile", func(t *testing.T) {
		book, mock := newBookTest(t)

		mock.ExpectExec("UPDATE published_tiles SET occupant_bid").
			WithArgs(bid.X, bid.Y, bid.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, book.Unpublish(context.Background(), &bid))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("occupancy changed concurrently", func(t *testing.T) {
		book, mock := newBookTest(t)

		mock.ExpectExec("UPDATE published_tiles SET occupant_bid").
			WithArgs(bid.X, bid.Y, bid.ID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := book.Unpublish(context.Background(), &bid)
		assert.ErrorIs(t, err, ErrBidNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRejectBid(t *testing.T) {
	book, mock := newBookTest(t)

	admin := &models.AdminUser{AuthenticatedUser: models.AuthenticatedUser{ID: uuid.New()}}
	bid := models.Bid{ID: uuid.New(), X: 9, Y: 9}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE bids SET rejection").
		WithArgs(sqlmock.AnyArg(), bid.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE published_tiles SET occupant_bid").
		WithArgs(bid.X, bid.Y, bid.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, book.Reject(context.Background(), &bid, admin, "inappropriate content"))
	require.NotNil(t, bid.Rejection)
	assert.Equal(t, "inappropriate content", bid.Rejection.Reason)
	assert.Equal(t, admin.ID, bid.Rejection.RejectedBy)

	t.Run("rejected bids are a no-op", func(t *testing.T) {
		require.NoError(t, book.Reject(context.Background(), &bid, admin, "again"))
		assert.Equal(t, "inappropriate content", bid.Rejection.Reason)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOccupantBid(t *testing.T) {
	coords := models.Coords{X: 3, Y: 4}

	t.Run("vacant tile", func(t *testing.T) {
		book, mock := newBookTest(t)

		mock.ExpectQuery("SELECT(.+)FROM published_tiles").
			WithArgs(coords.X, coords.Y).
			WillReturnRows(sqlmock.NewRows(bidTestColumns))

		occupant, err := book.GetOccupantBid(context.Background(), coords)
		require.NoError(t, err)
		assert.Nil(t, occupant)
	})

	t.Run("occupied tile decodes content", func(t *testing.T) {
		book, mock := newBookTest(t)

		content, _ := json.Marshal(models.BidContent{Title: models.StrPtr("shop")})
		published := time.Now()
		mock.ExpectQuery("SELECT(.+)FROM published_tiles").
			WithArgs(coords.X, coords.Y).
			WillReturnRows(sqlmock.NewRows(bidTestColumns).AddRow(
				uuid.New(), uuid.New(), uuid.New(), coords.X, coords.Y,
				content, int64(8), time.Now(), published, nil,
			))

		occupant, err := book.GetOccupantBid(context.Background(), coords)
		require.NoError(t, err)
		require.NotNil(t, occupant)
		require.NotNil(t, occupant.Content.Title)
		assert.Equal(t, "shop", *occupant.Content.Title)
		assert.True(t, occupant.IsPublished())
	})
}
