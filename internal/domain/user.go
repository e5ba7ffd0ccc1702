package domain

// UserType is the tenant class of a registered user.
type UserType string

const (
	UserInstitution UserType = "Institution"
	UserPrivate     UserType = "Private"
	UserTechnician  UserType = "Technician"
	UserAdmin       UserType = "Admin"
)

// ValidUserType reports whether t is a declared tenant class. Institutional
// subtypes from imported data ("Government", "University", "Airport", ...)
// are carried in InstitutionType, not here.
func ValidUserType(t UserType) bool {
	switch t {
	case UserInstitution, UserPrivate, UserTechnician, UserAdmin:
		return true
	}
	return false
}

// User is a registered tenant. The credential digest is opaque to the store
// and is only ever compared, never decrypted.
//
// PII fields (name, email of Private and Admin users) live exclusively in the
// Encrypted* fields as ciphertext produced by the secure package. The
// plaintext fields below them are public institutional data and safe to
// index. The two groups are structurally separate so the index manager can
// never index ciphertext.
type User struct {
	UserID           string   `json:"id"`
	UserType         UserType `json:"user_type"`
	CredentialDigest string   `json:"credential_digest"`

	// Public fields, plaintext and indexable.
	DisplayName     string `json:"display_name,omitempty"` // Private users
	Institution     string `json:"institution,omitempty"`  // Institution users
	InstitutionType string `json:"institution_type,omitempty"`
	Contact         string `json:"contact,omitempty"`
	Telephone       string `json:"telephone,omitempty"`

	// PII, ciphertext only. Present for Private and Admin users.
	EncryptedName  string `json:"name_enc,omitempty"`
	EncryptedEmail string `json:"email_enc,omitempty"`
}

// Technician services weather stations. Contact details are business data,
// stored plaintext.
type Technician struct {
	TechID    string `json:"id"`
	Name      string `json:"name"`
	Company   string `json:"company"`
	Email     string `json:"email,omitempty"`
	Telephone string `json:"telephone,omitempty"`
}
