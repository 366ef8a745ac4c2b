package model

// Item is a priced product that belongs to exactly one store.
type Item struct {
	ID      int64     `json:"id"`
	Name    string    `json:"name"`
	Price   float64   `json:"price"`
	StoreID int64     `json:"-"`
	Store   *StoreRef `json:"store,omitempty"`
	Tags    []TagRef  `json:"tags"`
}

// ItemRef is the plain form of an item nested in other resources.
type ItemRef struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Ref returns the plain form of the item.
func (i *Item) Ref() ItemRef {
	return ItemRef{ID: i.ID, Name: i.Name, Price: i.Price}
}
