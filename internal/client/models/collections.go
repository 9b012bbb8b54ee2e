package models

// Index declares a secondary lookup over one payload field.
type Index struct {
	Field  string
	Unique bool
}

// Collection describes one tracked record collection and its indexes.
// SearchFields are the defaults used by the substring search.
type Collection struct {
	Name         string
	Indexes      []Index
	SearchFields []string
}

// Collections lists every tracked collection, in sync order. The schema
// mirrors the server's roster model: voters and candidates, the anchor and
// introducer relationship collections, and parties.
var Collections = []Collection{
	{
		Name: "voters",
		Indexes: []Index{
			{Field: "voter_number", Unique: true},
			{Field: "full_name"},
			{Field: "classification"},
			{Field: "introducer_id"},
			{Field: "phone"},
		},
		SearchFields: []string{"full_name", "voter_number"},
	},
	{
		Name: "candidates",
		Indexes: []Index{
			{Field: "full_name"},
			{Field: "party_id"},
			{Field: "serial_number"},
		},
		SearchFields: []string{"full_name"},
	},
	{
		Name: "anchors",
		Indexes: []Index{
			{Field: "candidate_id"},
			{Field: "voter_number"},
		},
		SearchFields: []string{"voter_number"},
	},
	{
		Name: "introducers",
		Indexes: []Index{
			{Field: "anchor_id"},
			{Field: "voter_number"},
		},
		SearchFields: []string{"voter_number"},
	},
	{
		Name: "parties",
		Indexes: []Index{
			{Field: "name"},
			{Field: "serial_number", Unique: true},
		},
		SearchFields: []string{"name"},
	},
}

// CollectionByName looks a collection up by name.
func CollectionByName(name string) (Collection, bool) {
	for _, c := range Collections {
		if c.Name == name {
			return c, true
		}
	}
	return Collection{}, false
}

// CollectionNames returns the tracked collection names in sync order.
func CollectionNames() []string {
	names := make([]string, 0, len(Collections))
	for _, c := range Collections {
		names = append(names, c.Name)
	}
	return names
}

// HasIndex reports whether the collection declares an index on field.
func (c Collection) HasIndex(field string) bool {
	for _, idx := range c.Indexes {
		if idx.Field == field {
			return true
		}
	}
	return false
}
