package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// AccountKind tags the party type behind a ledger account.
type AccountKind string

const (
	AccountUser    AccountKind = "user"
	AccountSystem  AccountKind = "system"
	AccountInvalid AccountKind = "invalid"
)

// Account identifies a ledger party: a user, a named system account
// (the bank, a tile, a temporary mint account), or invalid.
type Account struct {
	Kind   AccountKind `json:"type"`
	UserID uuid.UUID   `json:"id,omitempty"`
	System string      `json:"name,omitempty"`
}

func UserAccount(userID uuid.UUID) Account {
	return Account{Kind: AccountUser, UserID: userID}
}

func SystemAccount(name string) Account {
	return Account{Kind: AccountSystem, System: name}
}

// AccountFromColumns rebuilds an account from the (user, system) column
// pair of a transaction side. Exactly one of the pair is set per side;
// neither set means the side is absent (pure mint) and yields Invalid.
func AccountFromColumns(userID *uuid.UUID, system *string) Account {
	switch {
	case userID != nil:
		return UserAccount(*userID)
	case system != nil:
		return SystemAccount(*system)
	default:
		return Account{Kind: AccountInvalid}
	}
}

// Columns splits the account back into the nullable (user, system)
// column pair used by the transactions table.
func (a Account) Columns() (*uuid.UUID, *string) {
	switch a.Kind {
	case AccountUser:
		id := a.UserID
		return &id, nil
	case AccountSystem:
		sys := a.System
		return nil, &sys
	default:
		return nil, nil
	}
}

func (a Account) IsValid() bool {
	return a.Kind == AccountUser || a.Kind == AccountSystem
}

func (a Account) Equal(b Account) bool {
	return a.Kind == b.Kind && a.UserID == b.UserID && a.System == b.System
}

func (a Account) String() string {
	switch a.Kind {
	case AccountUser:
		return "[u]" + a.UserID.String()
	case AccountSystem:
		return "[s]" + a.System
	default:
		return "invalid"
	}
}

// UnmarshalJSON accepts the wire shape {"type": "user", "id": "..."} or
// {"type": "system", "name": "..."}.
func (a *Account) UnmarshalJSON(data []byte) error {
	type alias struct {
		Kind   AccountKind `json:"type"`
		UserID *uuid.UUID  `json:"id"`
		System *string     `json:"name"`
	}
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Kind {
	case AccountUser:
		if raw.UserID == nil {
			return fmt.Errorf("user account requires an id")
		}
		*a = UserAccount(*raw.UserID)
	case AccountSystem:
		if raw.System == nil {
			return fmt.Errorf("system account requires a name")
		}
		*a = SystemAccount(*raw.System)
	default:
		*a = Account{Kind: AccountInvalid}
	}
	return nil
}
