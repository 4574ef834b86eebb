package domain

// Group is a study group as listed by the backend.
type Group struct {
	ID          ID       `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	GroupNumber int      `json:"groupNumber"`
	InviteLink  string   `json:"inviteLink,omitempty"`
	Members     []string `json:"members,omitempty"`
	MemberCount int      `json:"memberCount"`
}
