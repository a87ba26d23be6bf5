package models

import "encoding/json"

// Item is a record from the search index. The full record is kept in Raw
// so tool outputs forward every attribute the index returned.
type Item struct {
	ObjectID string
	Title    string
	Raw      json.RawMessage
}

// UnmarshalJSON decodes objectID and a display title (title, falling back to
// name) while retaining the raw record.
func (i *Item) UnmarshalJSON(data []byte) error {
	var head struct {
		ObjectID string `json:"objectID"`
		Title    string `json:"title"`
		Name     string `json:"name"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	i.ObjectID = head.ObjectID
	i.Title = head.Title
	if i.Title == "" {
		i.Title = head.Name
	}
	i.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON emits the raw record when present.
func (i Item) MarshalJSON() ([]byte, error) {
	if len(i.Raw) > 0 {
		return i.Raw, nil
	}
	return json.Marshal(struct {
		ObjectID string `json:"objectID"`
		Title    string `json:"title,omitempty"`
	}{i.ObjectID, i.Title})
}

// ObjectIDs returns the IDs of items in order.
func ObjectIDs(items []Item) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ObjectID)
	}
	return ids
}
