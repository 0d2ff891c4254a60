package services

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilebank/backend/internal/models"
)

func TestValidateCoords(t *testing.T) {
	rules := BidRules{BlockedCoords: []models.Coords{{X: 0, Y: 0}, {X: -1, Y: -1}}}

	assert.NoError(t, ValidateCoords(models.Coords{X: 1, Y: 1}, rules))
	assert.ErrorIs(t, ValidateCoords(models.Coords{X: 0, Y: 0}, rules), ErrUnauthorizedCoords)
	assert.ErrorIs(t, ValidateCoords(models.Coords{X: -1, Y: -1}, rules), ErrUnauthorizedCoords)
}

func TestValidateBid(t *testing.T) {
	bidder := uuid.New()
	coords := models.Coords{X: 2, Y: 2}
	rules := BidRules{MinimumBid: 3, BlockedCoords: []models.Coords{{X: 0, Y: 0}}}

	usableOffer := func() models.Transaction {
		id := uuid.New()
		return models.Transaction{
			ID:            &id,
			Sender:        &bidder,
			ReceiverSys:   models.StrPtr(coords.TileAccountName()),
			ConsumedValue: 5,
		}
	}

	t.Run("blocked coordinates", func(t *testing.T) {
		book, _ := newBookTest(t)
		tx := usableOffer()
		err := ValidateBid(context.Background(), book, &tx, bidder, models.Coords{X: 0, Y: 0}, rules)
		assert.ErrorIs(t, err, ErrUnauthorizedCoords)
	})

	t.Run("not the bidder's offer", func(t *testing.T) {
		book, _ := newBookTest(t)
		tx := usableOffer()
		err := ValidateBid(context.Background(), book, &tx, uuid.New(), coords, rules)
		assert.ErrorIs(t, err, ErrUnauthorizedTransaction)
	})

	t.Run("spent payment", func(t *testing.T) {
		book, _ := newBookTest(t)
		tx := usableOffer()
		tx.Consumed = true
		err := ValidateBid(context.Background(), book, &tx, bidder, coords, rules)
		assert.ErrorIs(t, err, ErrUnauthorizedTransaction)
	})

	t.Run("payment addressed to another tile", func(t *testing.T) {
		book, _ := newBookTest(t)
		tx := usableOffer()
		tx.ReceiverSys = models.StrPtr("tile:9:9")
		err := ValidateBid(context.Background(), book, &tx, bidder, coords, rules)
		assert.ErrorIs(t, err, ErrIncorrectTransaction)
	})

	t.Run("below the minimum bid", func(t *testing.T) {
		book, _ := newBookTest(t)
		tx := usableOffer()
		tx.ConsumedValue = 2
		err := ValidateBid(context.Background(), book, &tx, bidder, coords, rules)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	})

	t.Run("already earmarked", func(t *testing.T) {
		book, mock := newBookTest(t)
		tx := usableOffer()

		mock.ExpectQuery("SELECT(.+)FROM bids WHERE tx").
			WithArgs(*tx.ID).
			WillReturnRows(bidRow(uuid.New(), bidder, *tx.ID, coords.X, coords.Y, 5))

		err := ValidateBid(context.Background(), book, &tx, bidder, coords, rules)
		assert.ErrorIs(t, err, ErrAlreadyEarmarked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("valid bid", func(t *testing.T) {
		book, mock := newBookTest(t)
		tx := usableOffer()

		mock.ExpectQuery("SELECT(.+)FROM bids WHERE tx").
			WithArgs(*tx.ID).
			WillReturnRows(sqlmock.NewRows(bidTestColumns))

		require.NoError(t, ValidateBid(context.Background(), book, &tx, bidder, coords, rules))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestValidateBidContent(t *testing.T) {
	t.Run("empty content is valid", func(t *testing.T) {
		assert.NoError(t, ValidateBidContent(models.BidContent{}))
	})

	t.Run("full valid content", func(t *testing.T) {
		content := models.BidContent{
			Title:       models.StrPtr("My shop"),
			Subtitle:    models.StrPtr("Open every day"),
			Description: models.StrPtr("The best shop on the map"),
			URL:         models.StrPtr("https://example.com/shop"),
		}
		assert.NoError(t, ValidateBidContent(content))
	})

	t.Run("tel link", func(t *testing.T) {
		assert.NoError(t, ValidateBidContent(models.BidContent{URL: models.StrPtr("tel:+4917012345")}))
	})

	t.Run("collects every failing field", func(t *testing.T) {
		content := models.BidContent{
			Title:       models.StrPtr(strings.Repeat("a", 121)),
			Subtitle:    models.StrPtr(strings.Repeat("b", 121)),
			Description: models.StrPtr(strings.Repeat("c", 1001)),
			URL:         models.StrPtr("http://insecure.example.com"),
		}

		err := ValidateBidContent(content)
		require.Error(t, err)

		var contentErr *ContentValidationError
		require.ErrorAs(t, err, &contentErr)
		require.NotNil(t, contentErr.Title)
		assert.Equal(t, ContentTooLong, *contentErr.Title)
		require.NotNil(t, contentErr.Subtitle)
		assert.Equal(t, ContentTooLong, *contentErr.Subtitle)
		require.NotNil(t, contentErr.Description)
		assert.Equal(t, ContentTooLong, *contentErr.Description)
		require.NotNil(t, contentErr.URL)
		assert.Equal(t, ContentInvalidURL, *contentErr.URL)
	})

	t.Run("rejects invalid links", func(t *testing.T) {
		for _, link := range []string{
			"http://example.com",
			"javascript:alert(1)",
			"tel:12345",
			"tel:+123",
			"not a url",
		} {
			err := ValidateBidContent(models.BidContent{URL: &link})
			assert.Error(t, err, "link %q should be rejected", link)
		}
	})

	t.Run("caps url length", func(t *testing.T) {
		long := "https://example.com/" + strings.Repeat("x", 2048)
		err := ValidateBidContent(models.BidContent{URL: &long})

		var contentErr *ContentValidationError
		require.ErrorAs(t, err, &contentErr)
		require.NotNil(t, contentErr.URL)
		assert.Equal(t, ContentTooLong, *contentErr.URL)
	})
}

func TestStatusForError(t *testing.T) {
	cases := map[error]int{
		ErrInsufficientFunds:       403,
		ErrAlreadyUsedTransaction:  409,
		ErrAlreadyEarmarked:        409,
		ErrTransactionNotFound:     404,
		ErrBidNotFound:             404,
		ErrUnauthorizedTransaction: 401,
		ErrUnauthorizedBid:         401,
		ErrUnauthorizedCoords:      401,
		ErrErroneousTransaction:    400,
		ErrIncorrectTransaction:    400,
		ErrUnknown:                 500,
	}
	for err, status := range cases {
		assert.Equal(t, status, StatusForError(err), "error %v", err)
	}

	contentErr := &ContentValidationError{Title: fieldErr(ContentTooLong)}
	assert.Equal(t, 400, StatusForError(contentErr))
}
