// Package trace provides types for ABI trace event collection and display.
package trace

import "time"

// Tag represents a trace event category. Stored without the leading '#';
// the prefix is added on rendering.
type Tag string

// Standard tags for Amiga ABI trace events.
const (
	TaskControl Tag = "task"
	Memory      Tag = "memory"
	DeviceIO    Tag = "device-io"
	Message     Tag = "message"
	Romtag      Tag = "romtag"
	Reloc       Tag = "reloc"
	Halt        Tag = "halt"
	Fault       Tag = "fault"
	Fallback    Tag = "fallback"
)

// Tags is a collection of tags with helper methods.
type Tags []Tag

// Has returns true if the tag collection contains the given tag.
func (t Tags) Has(tag Tag) bool {
	for _, x := range t {
		if x == tag {
			return true
		}
	}
	return false
}

// Add adds a tag if not already present.
func (t *Tags) Add(tag Tag) {
	if !t.Has(tag) {
		*t = append(*t, tag)
	}
}

// Strings returns tags as strings with '#' prefix for display.
func (t Tags) Strings() []string {
	out := make([]string, len(t))
	for i, tag := range t {
		out[i] = "#" + string(tag)
	}
	return out
}

// Primary returns the first tag or empty string if none.
func (t Tags) Primary() Tag {
	if len(t) > 0 {
		return t[0]
	}
	return ""
}

// Annotations holds key-value metadata for trace events.
type Annotations map[string]string

// Set adds or updates an annotation.
func (a Annotations) Set(k, v string) {
	a[k] = v
}

// Event represents one traced ABI vector dispatch.
type Event struct {
	PC          uint32
	Tags        Tags
	Name        string // vector name, e.g. "AllocMem"
	Detail      string // e.g. "size=256 -> 0x100100"
	Annotations Annotations
	Timestamp   time.Time
}

// NewEvent creates a new trace event with the given parameters.
func NewEvent(pc uint32, category, name, detail string) *Event {
	return &Event{
		PC:          pc,
		Tags:        Tags{Tag(category)},
		Name:        name,
		Detail:      detail,
		Annotations: make(Annotations),
		Timestamp:   time.Now(),
	}
}

// AddTag adds a tag to the event.
func (e *Event) AddTag(tag Tag) {
	e.Tags.Add(tag)
}

// Annotate sets an annotation on the event.
func (e *Event) Annotate(k, v string) {
	if e.Annotations == nil {
		e.Annotations = make(Annotations)
	}
	e.Annotations.Set(k, v)
}

// PrimaryTag returns the primary (first) tag with '#' prefix.
func (e *Event) PrimaryTag() string {
	if len(e.Tags) > 0 {
		return "#" + string(e.Tags[0])
	}
	return ""
}

// Enricher enriches trace events based on category and name.
type Enricher func(e *Event)

// DefaultEnricher adds additional tags based on category and vector name.
func DefaultEnricher(e *Event) {
	if len(e.Tags) == 0 {
		return
	}

	switch string(e.Tags[0]) {
	case "task":
		switch e.Name {
		case "Wait", "Signal", "AllocSignal", "FreeSignal":
			e.AddTag(TaskControl)
		}
	case "memory":
		switch e.Name {
		case "AllocMem", "FreeMem":
			e.AddTag(Memory)
		}
	case "device-io":
		switch e.Name {
		case "BeginIO", "DoIO", "WaitIO", "OpenDevice", "AddDevice":
			e.AddTag(DeviceIO)
		}
	case "message":
		switch e.Name {
		case "PutMsg", "GetMsg", "ReplyMsg":
			e.AddTag(Message)
		}
	}
}
