package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCoords(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		coords, err := ParseCoords("3:-7")
		require.NoError(t, err)
		assert.Equal(t, Coords{X: 3, Y: -7}, coords)
	})

	t.Run("missing separator", func(t *testing.T) {
		_, err := ParseCoords("37")
		assert.ErrorIs(t, err, ErrInvalidCoords)
	})

	t.Run("non numeric", func(t *testing.T) {
		_, err := ParseCoords("a:b")
		assert.ErrorIs(t, err, ErrInvalidCoords)
	})

	t.Run("round trips through String", func(t *testing.T) {
		coords := Coords{X: -12, Y: 40}
		parsed, err := ParseCoords(coords.String())
		require.NoError(t, err)
		assert.Equal(t, coords, parsed)
	})
}

func TestTileAccount(t *testing.T) {
	coords := Coords{X: 5, Y: 9}
	assert.Equal(t, "tile:5:9", coords.TileAccountName())
	assert.Equal(t, SystemAccount("tile:5:9"), coords.TileAccount())

	parsed, err := ParseTileAccount("tile:5:9")
	require.NoError(t, err)
	assert.Equal(t, coords, parsed)

	_, err = ParseTileAccount("bank")
	assert.ErrorIs(t, err, ErrInvalidCoords)
}

func TestCoordsIsRecipientOf(t *testing.T) {
	coords := Coords{X: 1, Y: 2}
	sender := uuid.New()

	tx := Transaction{Sender: &sender, ReceiverSys: StrPtr("tile:1:2")}
	assert.True(t, coords.IsRecipientOf(&tx))

	other := Transaction{Sender: &sender, ReceiverSys: StrPtr("tile:2:1")}
	assert.False(t, coords.IsRecipientOf(&other))

	user := uuid.New()
	toUser := Transaction{Sender: &sender, Receiver: &user}
	assert.False(t, coords.IsRecipientOf(&toUser))
}
