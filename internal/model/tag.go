package model

// Tag labels items of a single store. Items and tags are linked many-to-many
// through the item_tag table.
type Tag struct {
	ID      int64     `json:"id"`
	Name    string    `json:"name"`
	StoreID int64     `json:"-"`
	Store   *StoreRef `json:"store,omitempty"`
	Items   []ItemRef `json:"items"`
}

// TagRef is the plain form of a tag nested in other resources.
type TagRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Ref returns the plain form of the tag.
func (t *Tag) Ref() TagRef {
	return TagRef{ID: t.ID, Name: t.Name}
}
