package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tilebank/backend/internal/cache"
	"github.com/tilebank/backend/internal/models"
	"github.com/tilebank/backend/internal/services"
)

var bidTestColumns = []string{
	"id", "bidder", "tx", "x", "y", "content",
	"amount", "created_at", "published_at", "rejection",
}

type fakePublisher struct {
	published   []uuid.UUID
	unpublished []models.Coords
	err         error
}

func (p *fakePublisher) Publish(_ context.Context, bid *models.Bid) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, bid.ID)
	return nil
}

func (p *fakePublisher) Unpublish(_ context.Context, coords models.Coords) error {
	if p.err != nil {
		return p.err
	}
	p.unpublished = append(p.unpublished, coords)
	return nil
}

type biddingTestEnv struct {
	handler *BiddingHandler
	mock    sqlmock.Sqlmock
	pub     *fakePublisher
}

func newBiddingTest(t *testing.T, rules services.BidRules) biddingTestEnv {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	ledger := services.NewLedgerService(db, logger, 10)
	book := services.NewBookService(db, logger, 7*24*time.Hour)
	pub := &fakePublisher{}
	auction := services.NewAuctionService(ledger, book, pub, logger)
	tiles := cache.NewTileCache(nil, logger)

	return biddingTestEnv{
		handler: NewBiddingHandler(ledger, book, auction, pub, nil, tiles, rules, logger),
		mock:    mock,
		pub:     pub,
	}
}

func routeParamRequest(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func coordsRequest(r *http.Request, coords string) *http.Request {
	return routeParamRequest(r, "coords", coords)
}

func TestGetTileInfo(t *testing.T) {
	rules := services.BidRules{MinimumBid: 3}

	t.Run("vacant tile", func(t *testing.T) {
		env := newBiddingTest(t, rules)

		env.mock.ExpectQuery("SELECT(.+)FROM published_tiles").
			WithArgs(int32(4), int32(-2)).
			WillReturnRows(sqlmock.NewRows(bidTestColumns))

		r := coordsRequest(httptest.NewRequest("GET", "/api/v1/bids/4:-2", nil), "4:-2")
		w := httptest.NewRecorder()
		env.handler.GetTileInfo(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var body struct {
			LastBid     *models.Bid `json:"last_bid"`
			NextAuction *time.Time  `json:"next_auction"`
			MinimumBid  int64       `json:"minimum_bid"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Nil(t, body.LastBid)
		assert.Nil(t, body.NextAuction)
		assert.Equal(t, int64(3), body.MinimumBid)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("occupied tile carries the next auction time", func(t *testing.T) {
		env := newBiddingTest(t, rules)

		publishedAt := time.Now().UTC().Add(-time.Hour)
		env.mock.ExpectQuery("SELECT(.+)FROM published_tiles").
			WithArgs(int32(0), int32(0)).
			WillReturnRows(sqlmock.NewRows(bidTestColumns).AddRow(
				uuid.New(), uuid.New(), uuid.New(), int32(0), int32(0), []byte(`{}`),
				5, publishedAt.Add(-time.Minute), publishedAt, nil,
			))

		r := coordsRequest(httptest.NewRequest("GET", "/api/v1/bids/0:0", nil), "0:0")
		w := httptest.NewRecorder()
		env.handler.GetTileInfo(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var body struct {
			LastBid     *models.Bid `json:"last_bid"`
			NextAuction *time.Time  `json:"next_auction"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.NotNil(t, body.LastBid)
		require.NotNil(t, body.NextAuction)
		assert.WithinDuration(t, publishedAt.Add(7*24*time.Hour), *body.NextAuction, time.Second)
	})

	t.Run("malformed coordinates", func(t *testing.T) {
		env := newBiddingTest(t, rules)

		r := coordsRequest(httptest.NewRequest("GET", "/api/v1/bids/zzz", nil), "zzz")
		w := httptest.NewRecorder()
		env.handler.GetTileInfo(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRescindBidHandler(t *testing.T) {
	user := &models.AuthenticatedUser{ID: uuid.New()}

	t.Run("no pending bid", func(t *testing.T) {
		env := newBiddingTest(t, services.BidRules{MinimumBid: 1})

		env.mock.ExpectQuery("SELECT(.+)FROM bids").
			WithArgs(user.ID, int32(1), int32(1)).
			WillReturnRows(sqlmock.NewRows(bidTestColumns))

		r := coordsRequest(authedRequest("DELETE", "/api/v1/bids/1:1", nil, user), "1:1")
		w := httptest.NewRecorder()
		env.handler.RescindBid(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("pending bid removed", func(t *testing.T) {
		env := newBiddingTest(t, services.BidRules{MinimumBid: 1})

		bidID := uuid.New()
		env.mock.ExpectQuery("SELECT(.+)FROM bids").
			WithArgs(user.ID, int32(2), int32(3)).
			WillReturnRows(sqlmock.NewRows(bidTestColumns).AddRow(
				bidID, user.ID, uuid.New(), int32(2), int32(3), []byte(`{}`),
				4, time.Now(), nil, nil,
			))
		env.mock.ExpectExec("DELETE FROM bids").
			WithArgs(bidID, user.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		r := coordsRequest(authedRequest("DELETE", "/api/v1/bids/2:3", nil, user), "2:3")
		w := httptest.NewRecorder()
		env.handler.RescindBid(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var bid models.Bid
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bid))
		assert.Equal(t, bidID, bid.ID)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})
}

func TestUnpublishLiveBid(t *testing.T) {
	user := &models.AuthenticatedUser{ID: uuid.New()}
	rules := services.BidRules{MinimumBid: 1}

	occupantRow := func(bidder uuid.UUID) *sqlmock.Rows {
		publishedAt := time.Now().UTC().Add(-time.Hour)
		return sqlmock.NewRows(bidTestColumns).AddRow(
			uuid.New(), bidder, uuid.New(), int32(5), int32(5), []byte(`{}`),
			7, publishedAt.Add(-time.Minute), publishedAt, nil,
		)
	}

	t.Run("vacant tile", func(t *testing.T) {
		env := newBiddingTest(t, rules)

		env.mock.ExpectQuery("SELECT(.+)FROM published_tiles").
			WithArgs(int32(5), int32(5)).
			WillReturnRows(sqlmock.NewRows(bidTestColumns))

		r := coordsRequest(authedRequest("DELETE", "/api/v1/bids/live/5:5", nil, user), "5:5")
		w := httptest.NewRecorder()
		env.handler.UnpublishLiveBid(w, r)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("someone else's tile", func(t *testing.T) {
		env := newBiddingTest(t, rules)

		env.mock.ExpectQuery("SELECT(.+)FROM published_tiles").
			WithArgs(int32(5), int32(5)).
			WillReturnRows(occupantRow(uuid.New()))

		r := coordsRequest(authedRequest("DELETE", "/api/v1/bids/live/5:5", nil, user), "5:5")
		w := httptest.NewRecorder()
		env.handler.UnpublishLiveBid(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Empty(t, env.pub.unpublished)
	})

	t.Run("retraction failure surfaces", func(t *testing.T) {
		env := newBiddingTest(t, rules)
		env.pub.err = errors.New("renderer down")

		env.mock.ExpectQuery("SELECT(.+)FROM published_tiles").
			WithArgs(int32(5), int32(5)).
			WillReturnRows(occupantRow(user.ID))

		r := coordsRequest(authedRequest("DELETE", "/api/v1/bids/live/5:5", nil, user), "5:5")
		w := httptest.NewRecorder()
		env.handler.UnpublishLiveBid(w, r)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestInitBidSpentPayment(t *testing.T) {
	user := &models.AuthenticatedUser{ID: uuid.New()}
	env := newBiddingTest(t, services.BidRules{MinimumBid: 1})

	txID := uuid.New()
	env.mock.ExpectQuery("SELECT(.+)FROM transactions WHERE id").
		WithArgs(txID).
		WillReturnRows(sqlmock.NewRows(transactionTestColumns).AddRow(
			txID, user.ID, nil, nil, "bank",
			nil, 5, nil, 0,
			false, true, false, nil, user.ID, time.Now(),
		))

	raw, _ := json.Marshal(map[string]string{"transaction": txID.String()})
	r := coordsRequest(authedRequest("POST", "/api/v1/bids/1:1/init", raw, user), "1:1")
	w := httptest.NewRecorder()
	env.handler.InitBid(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}
