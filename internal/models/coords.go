package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidCoords = errors.New("invalid coordinates")

// Coords addresses a single tile on the map.
type Coords struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

// ParseCoords parses a path segment of the form "x:y".
func ParseCoords(s string) (Coords, error) {
	xs, ys, ok := strings.Cut(s, ":")
	if !ok {
		return Coords{}, ErrInvalidCoords
	}
	x, err := strconv.ParseInt(xs, 10, 32)
	if err != nil {
		return Coords{}, fmt.Errorf("%w: %v", ErrInvalidCoords, err)
	}
	y, err := strconv.ParseInt(ys, 10, 32)
	if err != nil {
		return Coords{}, fmt.Errorf("%w: %v", ErrInvalidCoords, err)
	}
	return Coords{X: int32(x), Y: int32(y)}, nil
}

func (c Coords) String() string {
	return fmt.Sprintf("%d:%d", c.X, c.Y)
}

// TileAccount returns the deterministic system account that receives
// payments for this tile.
func (c Coords) TileAccount() Account {
	return SystemAccount(c.TileAccountName())
}

func (c Coords) TileAccountName() string {
	return fmt.Sprintf("tile:%d:%d", c.X, c.Y)
}

// ParseTileAccount parses a system account name of the form "tile:x:y"
// back into coordinates.
func ParseTileAccount(name string) (Coords, error) {
	rest, ok := strings.CutPrefix(name, "tile:")
	if !ok {
		return Coords{}, ErrInvalidCoords
	}
	return ParseCoords(rest)
}

// IsRecipientOf reports whether this tile's account is the receiver of
// the given transaction.
func (c Coords) IsRecipientOf(tx *Transaction) bool {
	recv := tx.ReceiverAccount()
	return recv.Kind == AccountSystem && recv.System == c.TileAccountName()
}
