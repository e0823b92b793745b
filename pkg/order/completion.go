package order

// Completion is a finalized order as handed to the kitchen.
type Completion struct {
	Items    []Line  `json:"items"`
	Total    float64 `json:"total"`
	Language string  `json:"language"`
}

// NewCompletion snapshots lines and derives the total from them.
func NewCompletion(lines []Line, language string) Completion {
	items := make([]Line, len(lines))
	for i, l := range lines {
		items[i] = l.clone()
	}
	return Completion{Items: items, Total: Total(items), Language: language}
}
