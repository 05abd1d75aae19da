package app

import "encoding/json"

// jsonOptional distinguishes an absent JSON field from an explicit null.
// Absent means "leave unchanged", null means "clear".
type jsonOptional struct {
	Present bool
	Value   *string
}

func (o *jsonOptional) UnmarshalJSON(data []byte) error {
	o.Present = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}
