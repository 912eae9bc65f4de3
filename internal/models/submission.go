package models

// File is one file attached to a submission. FileURL and Filepath are the
// server-side location; LocalPath is set once download planning has resolved a
// destination on disk and stays empty until then. The two states are kept in
// separate fields so a raw server record is never silently rewritten.
type File struct {
	Filename string `json:"filename"`
	Filepath string `json:"filepath"`
	FileURL  string `json:"fileurl"`

	LocalPath string `json:"local_path,omitempty"`
}

// RelativePath joins the server-side directory and file name into the path the
// file had inside the submission, without a leading slash.
func (f File) RelativePath() string {
	p := f.Filepath
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	return p + f.Filename
}

// FileArea groups the files of one submission plugin area.
type FileArea struct {
	Area  string `json:"area"`
	Files []File `json:"files"`
}

// HasContent reports whether the area carries at least one file.
func (a FileArea) HasContent() bool {
	return len(a.Files) > 0
}

// EditorField is free-form rich text entered by the submitter.
type EditorField struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// HasContent reports whether the field carries any text.
func (e EditorField) HasContent() bool {
	return e.Text != ""
}

// Plugin is one submission plugin (file upload, online text, comments, ...).
type Plugin struct {
	Type         string        `json:"type"`
	Name         string        `json:"name"`
	FileAreas    []FileArea    `json:"fileareas"`
	EditorFields []EditorField `json:"editorfields"`
}

// HasContent reports whether any editor field or file area of the plugin
// carries content.
func (p Plugin) HasContent() bool {
	for _, f := range p.EditorFields {
		if f.HasContent() {
			return true
		}
	}
	for _, a := range p.FileAreas {
		if a.HasContent() {
			return true
		}
	}
	return false
}

// Submission is one assignment submission. Moodle creates placeholder
// submissions for every enrolled user; only submissions with content are worth
// keeping, see HasContent.
type Submission struct {
	ID           int      `json:"id"`
	UserID       int      `json:"userid"`
	GroupID      int      `json:"groupid"`
	Status       string   `json:"status"`
	TimeModified int64    `json:"timemodified"`
	Plugins      []Plugin `json:"plugins"`
}

// HasContent reports whether at least one plugin carries editor text or files.
// Submissions where this is false are placeholders and are filtered before
// merge, never persisted.
func (s Submission) HasContent() bool {
	for _, p := range s.Plugins {
		if p.HasContent() {
			return true
		}
	}
	return false
}

// Files returns every file across all plugins and areas of the submission.
func (s Submission) Files() []File {
	var files []File
	for _, p := range s.Plugins {
		for _, a := range p.FileAreas {
			files = append(files, a.Files...)
		}
	}
	return files
}

// EditorText concatenates the text of every non-empty editor field.
func (s Submission) EditorText() string {
	var text string
	for _, p := range s.Plugins {
		for _, f := range p.EditorFields {
			if f.HasContent() {
				text += f.Text
			}
		}
	}
	return text
}
