package models

import "time"

// BookID is the stable identifier of a book within an account's local
// database, taken from the OPDS entry's atom ID.
type BookID string

// Book is the metadata the lending engine tracks for a single title.
type Book struct {
	ID      BookID    `json:"id"`
	Title   string    `json:"title"`
	Author  string    `json:"author,omitempty"`
	Updated time.Time `json:"updated,omitempty"`
}

// Credentials are the barcode/PIN pair used for basic auth against the
// library server.
type Credentials struct {
	Username string
	Password string
}

// Account identifies the patron account the engine operates on. Credentials
// is nil when the patron has not logged in.
type Account struct {
	ID          string
	LoansURL    string
	Credentials *Credentials
}

// Authenticated reports whether the account carries usable credentials.
func (a *Account) Authenticated() bool {
	return a != nil && a.Credentials != nil
}

// AdobeRights is the DRM rights information attached to a protected format.
type AdobeRights struct {
	Blob       []byte
	LoanID     string
	Returnable bool
}
