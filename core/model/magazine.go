package model

// Magazine describes one physical pill magazine slot of the device.
type Magazine struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Percentage int    `json:"percentage"`
	Color      string `json:"color"`
}

// DefaultMagazines seeds an empty installation with the device's factory
// slot layout.
func DefaultMagazines() []Magazine {
	return []Magazine{
		{ID: 1, Name: "Morning Mix", Type: "Multivitamin", Percentage: 60, Color: "bg-emerald-500"},
		{ID: 2, Name: "Pain Relief", Type: "Ibuprofen", Percentage: 20, Color: "bg-amber-500"},
	}
}
