package domain

// Transition is one observed adjacency between discrete state keys.
// Index is the source index of the output occurrence.
type Transition struct {
	InputKey  string
	OutputKey string
	Index     int
}
