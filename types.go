package authcore

import "context"

// UserRecord is the identity data the core needs from the directory.
// PasswordHash is a bcrypt hash; the core never sees stored plaintext,
// only the password presented at login.
type UserRecord struct {
	ID           string
	Username     string
	PasswordHash string
	Email        string
	Name         string
	Role         string
}

// UserDirectory is the single capability the core depends on for identity
// data, isolating it from whatever persistence technology holds the
// accounts. Lookup returns [ErrUserNotFound] for unknown usernames; any
// other error is treated as an upstream outage and fails closed.
type UserDirectory interface {
	Lookup(ctx context.Context, username string) (UserRecord, error)
}
