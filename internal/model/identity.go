package model

// Identity is who is checking out. UserID is set for authenticated
// customers; anonymous customers are known only by phone.
type Identity struct {
	UserID *string
	Phone  string
}

func (i Identity) Authenticated() bool {
	return i.UserID != nil && *i.UserID != ""
}
