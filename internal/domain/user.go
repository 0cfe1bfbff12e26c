package domain

// User is an authenticated operator.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
}

// Profile is the editable part of a user.
type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// Apply overwrites the profile fields of u.
func (u *User) Apply(p Profile) {
	u.FirstName = p.FirstName
	u.LastName = p.LastName
	u.Email = p.Email
}
