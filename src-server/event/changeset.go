package event

// Field names reported by (ChangeSet).Fields. The significant set below
// is what gates the series scope prompt.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldColor       = "color"
	FieldCategory    = "category"
	FieldLocation    = "location"
	FieldMeeting     = "meeting"
	FieldReminders   = "reminders"
	FieldRecurrence  = "recurrence"
	FieldStart       = "start"
	FieldEnd         = "end"
)

// ChangeSet is a partial event: only non-nil fields are applied on top
// of a working copy.
type ChangeSet struct {
	Title       *string
	Description *string
	Color       *string
	Category    *string
	Location    *string
	Meeting     *string
	Reminders   *[]int64
	Recurrence  *string

	StartUnixUTC *int64
	EndUnixUTC   *int64
}

// Apply overlays the change set onto ev, mutating it in place.
func (c ChangeSet) Apply(ev *Event) {
	if c.Title != nil {
		ev.Title = *c.Title
	}
	if c.Description != nil {
		ev.Description = *c.Description
	}
	if c.Color != nil {
		ev.Color = *c.Color
	}
	if c.Category != nil {
		ev.Category = *c.Category
	}
	if c.Location != nil {
		ev.Location = *c.Location
	}
	if c.Meeting != nil {
		ev.Meeting = *c.Meeting
	}
	if c.Reminders != nil {
		ev.Reminders = append([]int64(nil), (*c.Reminders)...)
	}
	if c.Recurrence != nil {
		ev.Recurrence = *c.Recurrence
	}
	if c.StartUnixUTC != nil {
		ev.StartUnixUTC = *c.StartUnixUTC
	}
	if c.EndUnixUTC != nil {
		ev.EndUnixUTC = *c.EndUnixUTC
	}
}

// Fields lists the names of the fields this change set touches.
func (c ChangeSet) Fields() []string {
	var fields []string
	if c.Title != nil {
		fields = append(fields, FieldTitle)
	}
	if c.Description != nil {
		fields = append(fields, FieldDescription)
	}
	if c.Color != nil {
		fields = append(fields, FieldColor)
	}
	if c.Category != nil {
		fields = append(fields, FieldCategory)
	}
	if c.Location != nil {
		fields = append(fields, FieldLocation)
	}
	if c.Meeting != nil {
		fields = append(fields, FieldMeeting)
	}
	if c.Reminders != nil {
		fields = append(fields, FieldReminders)
	}
	if c.Recurrence != nil {
		fields = append(fields, FieldRecurrence)
	}
	if c.StartUnixUTC != nil {
		fields = append(fields, FieldStart)
	}
	if c.EndUnixUTC != nil {
		fields = append(fields, FieldEnd)
	}
	return fields
}

func (c ChangeSet) IsEmpty() bool {
	return len(c.Fields()) == 0
}

// significantFields are the ones that warrant a scope decision when the
// edited event belongs to a series. Start/end moves of a single
// occurrence go through the exception path without a prompt.
var significantFields = map[string]struct{}{
	FieldTitle:       {},
	FieldDescription: {},
	FieldColor:       {},
	FieldCategory:    {},
	FieldLocation:    {},
	FieldReminders:   {},
	FieldMeeting:     {},
	FieldRecurrence:  {},
}

// IsSignificant reports whether any touched field belongs to the
// significant set.
func (c ChangeSet) IsSignificant() bool {
	for _, field := range c.Fields() {
		if _, ok := significantFields[field]; ok {
			return true
		}
	}
	return false
}
