package model

// Store owns items and tags.
type Store struct {
	ID    int64     `json:"id"`
	Name  string    `json:"name"`
	Items []ItemRef `json:"items"`
	Tags  []TagRef  `json:"tags"`
}

// StoreRef is the plain form of a store nested in other resources.
type StoreRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
