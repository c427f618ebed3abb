package domain

// Account identifies the signed-in principal of a console session.
type Account struct {
	ID       string // opaque object identifier (oid or sub claim)
	Username string // preferred_username / upn
	Name     string // display name
}

// Label returns the most readable identifier of the account.
func (a Account) Label() string {
	switch {
	case a.Username != "":
		return a.Username
	case a.Name != "":
		return a.Name
	default:
		return a.ID
	}
}

// Credential is a bearer token for the query service together with the
// account it was issued to. It is never persisted.
type Credential struct {
	Token   string
	Account Account
}

// Principal is the identity payload returned by the query service's /me probe.
type Principal struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
}
