package models

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
)

type User struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	Phone          string `json:"phone,omitempty"`
	Age            int    `json:"age,omitempty"`
	Specialization string `json:"specialization,omitempty"`
	Department     string `json:"department,omitempty"`
}

// Session is the authenticated identity plus the bearer credential issued for it.
type Session struct {
	Credential string `json:"token"`
	User       User   `json:"user"`
}

func (s Session) Valid() bool {
	return s.Credential != "" && s.User.ID != ""
}

type Profile struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"-"`
	Phone           string `json:"phone,omitempty"`
	Age             int    `json:"age"`
	Role            string `json:"role"`
	Specialization  string `json:"specialization,omitempty"`
	Department      string `json:"department,omitempty"`
}
