package index

// Field names of documents produced from files.
const (
	FieldFileName   = "fileName"
	FieldFilePath   = "filePath"
	FieldContent    = "content"
	FieldUpdateTime = "updateTime"
)

// Field is a named text value. Indexed fields are analyzed into terms;
// Stored fields are kept verbatim and returned with results.
type Field struct {
	Name    string
	Value   string
	Indexed bool
	Stored  bool
}

// TextField returns a field that is both indexed and stored.
func TextField(name, value string) Field {
	return Field{Name: name, Value: value, Indexed: true, Stored: true}
}

// StoredField returns a field that is stored but not searchable.
func StoredField(name, value string) Field {
	return Field{Name: name, Value: value, Stored: true}
}

// Document is an ordered list of fields. Its ID is assigned by the writer.
type Document struct {
	Fields []Field
}

func NewDocument(fields ...Field) Document {
	return Document{Fields: fields}
}

// Get returns the value of the first field called name.
func (d Document) Get(name string) (string, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}
