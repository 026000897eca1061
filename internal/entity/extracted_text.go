package entity

// ExtractedText holds OCR output produced by one completed analysis of a document.
type ExtractedText struct {
	ID         int     `json:"id"`
	DocumentID int     `json:"id_doc"`
	Text       *string `json:"text,omitempty"`
}

// Content returns the text, or "" when none was stored.
func (t *ExtractedText) Content() string {
	if t == nil || t.Text == nil {
		return ""
	}
	return *t.Text
}
