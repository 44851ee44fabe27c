package entity

// Account is a throwaway user/team registered for a single run.
// Nothing is cleaned up server-side; accounts are unique per run.
type Account struct {
	Email      string
	Password   string
	TeamName   string
	Token      string
	UserID     string
	TeamID     string
	InviteCode string
}
