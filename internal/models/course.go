package models

// Course is one Moodle course as returned by the webservice.
type Course struct {
	ID        int    `json:"id"`
	FullName  string `json:"fullname"`
	ShortName string `json:"shortname"`
}
