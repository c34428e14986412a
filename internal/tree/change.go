package tree

// Kind classifies how a path differs between the source and destination tree.
type Kind string

const (
	Added    Kind = "added"
	Modified Kind = "modified"
	Deleted  Kind = "deleted"
)

// Changes maps a slash-separated relative path to its change kind. It
// marshals to the {"path": "kind"} shape reported by the mirror result.
type Changes map[string]Kind
