package graph

const (
	// TypeAttribute is the default field carrying a record's type tag in
	// serialized form.
	TypeAttribute = "__type__"
	// DefaultType names records that have no registered model.
	DefaultType = "__default_type__"
	// DefaultIDAttribute is the default id field.
	DefaultIDAttribute = "id"
)

// maxIDAttempts bounds how many generated ids are tried before giving up on a
// generator that keeps colliding.
const maxIDAttempts = 1000
