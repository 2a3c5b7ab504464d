package domain

// Member is a user's presence in a relay room.
// No transport or lifecycle logic here.
type Member struct {
	User       *User
	AudioLevel float64
}

func NewMember(user *User) *Member {
	return &Member{User: user}
}
