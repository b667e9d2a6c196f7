package domain

// Template is a read-only catalog entry used to compose the final prompt.
type Template struct {
	ID             string
	Kind           JobKind
	PromptTemplate string
	Model          string
	Cost           int64
	Params         JobParams
}
