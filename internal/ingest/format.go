package ingest

// Field names a canonical call-record field that a vendor column maps onto.
type Field string

const (
	FieldAgent        Field = "agent"
	FieldStart        Field = "call_start"
	FieldDuration     Field = "duration"
	FieldDirection    Field = "direction"
	FieldContactName  Field = "contact_name"
	FieldContactPhone Field = "contact_phone"
	FieldResult       Field = "result"
)

// requiredFields must resolve to a column for a header row to count as a
// match. The remaining fields are optional in every vendor export.
var requiredFields = []Field{FieldAgent, FieldStart, FieldDuration, FieldDirection}

// FormatSpec describes one vendor export format: the header signature that
// identifies it and the column names that carry each canonical field.
// Column matching is case-insensitive and alias-based so minor vendor
// header drift does not require code changes.
type FormatSpec struct {
	// Name is the stable identifier persisted with uploads.
	Name string
	// DisplayName is shown in error messages naming the expected formats.
	DisplayName string
	// Signature is the set of header names unique to this vendor's export.
	// A row matches when every signature name appears in it.
	Signature []string
	// Columns maps each canonical field to the header names that may carry it.
	Columns map[Field][]string
	// TimeLayouts are tried in order against the call-start cell.
	TimeLayouts []string
}

// DefaultFormats returns the vendor export formats the engine recognizes:
// the CallTrax spreadsheet export and the VoiceLink delimited call log.
func DefaultFormats() []FormatSpec {
	return []FormatSpec{
		{
			Name:        "calltrax",
			DisplayName: "CallTrax activity export (.xlsx)",
			Signature:   []string{"User Name", "Date/Time", "Duration (sec)"},
			Columns: map[Field][]string{
				FieldAgent:        {"User Name", "User"},
				FieldStart:        {"Date/Time", "Call Date/Time"},
				FieldDuration:     {"Duration (sec)", "Duration"},
				FieldDirection:    {"Direction", "Call Type"},
				FieldContactName:  {"Contact Name", "Contact"},
				FieldContactPhone: {"Contact Phone", "Phone"},
				FieldResult:       {"Call Result", "Result"},
			},
			TimeLayouts: []string{
				"2006-01-02 15:04:05",
				"2006-01-02 15:04",
				"1/2/2006 15:04:05",
				"1/2/2006 15:04",
			},
		},
		{
			Name:        "voicelink",
			DisplayName: "VoiceLink call log (.csv)",
			Signature:   []string{"Agent", "Call Start", "Call Direction"},
			Columns: map[Field][]string{
				FieldAgent:        {"Agent", "Agent Name"},
				FieldStart:        {"Call Start", "Start Time"},
				FieldDuration:     {"Duration", "Talk Time"},
				FieldDirection:    {"Call Direction", "Direction"},
				FieldContactName:  {"Contact", "Contact Name"},
				FieldContactPhone: {"Phone Number", "Phone"},
				FieldResult:       {"Result", "Outcome"},
			},
			TimeLayouts: []string{
				"1/2/2006 3:04:05 PM",
				"1/2/2006 3:04 PM",
				"2006-01-02 15:04:05",
			},
		},
	}
}

// formatNames returns the display names of the given formats, for error
// messages naming the expected exports.
func formatNames(formats []FormatSpec) []string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = f.DisplayName
	}
	return names
}
