package models

// GroupRef is a group membership entry embedded in an enrolled-user record.
// The authoritative group object lives on the owning course; this is only the
// reference the server attaches to the user.
type GroupRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// User is one enrolled participant of a course.
type User struct {
	ID       int        `json:"id"`
	FullName string     `json:"fullname"`
	Groups   []GroupRef `json:"groups"`
}
