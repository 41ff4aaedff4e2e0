package domain

// Position locates a chunk within its own source.
type Position struct {
	Index   int  `json:"index"`
	Total   int  `json:"total"`
	IsFirst bool `json:"is_first"`
	IsLast  bool `json:"is_last"`
}

// NewPosition builds the position of chunk i out of total.
func NewPosition(i, total int) Position {
	return Position{Index: i, Total: total, IsFirst: i == 0, IsLast: i == total-1}
}

// Chunk is the unit stored in and retrieved from the index.
type Chunk struct {
	ID       int      `json:"chunk_id"`
	Source   string   `json:"source"`
	Text     string   `json:"text"`
	Position Position `json:"position"`
}
