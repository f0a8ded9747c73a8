package models

// Account : Account Model
//
// Every user owns a single "current" account; the service itself owns the
// system accounts (network clearing, fee revenue, rewards budget), which
// have no user id.
type Account struct {
	ID     int64  `bun:",pk,autoincrement"`
	UserID int64  `bun:",nullzero"`
	User   *User  `bun:"rel:belongs-to,join:user_id=id"`
	Type   string `bun:",notnull"`
}
