package export

// Event is one EDL event: the source window of a visible media element and
// where it sits on the record side. Times are seconds.
type Event struct {
	Reel      string
	ClipName  string
	MediaPath string
	SourceIn  float64
	SourceOut float64
	RecordIn  float64
	RecordOut float64
}

// Duration is the record-side length of the event.
func (e Event) Duration() float64 {
	return e.RecordOut - e.RecordIn
}

type Result struct {
	Path       string   `json:"path"`
	Format     string   `json:"format"`
	EventCount int      `json:"eventCount"`
	Unresolved []string `json:"unresolved,omitempty"`
}
