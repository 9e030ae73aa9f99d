package extracthtml

// SchemaFile describes a schema file. Both sections share the fragment table.
//
//	{
//	  fragments: { clean: ["collapseNewlines", "collapseInternalWhitespace", "trim"] },
//	  list:   { links: ["select 'a.item' {0,}", "attr href"] },
//	  detail: { title: ["select h1 {0,}[0]", "text", "@clean"] },
//	}
type SchemaFile struct {
	Fragments map[string]PipelineSpec `json:"fragments,omitempty"`
	List      map[string]PipelineSpec `json:"list,omitempty"`
	Detail    map[string]PipelineSpec `json:"detail,omitempty"`
}

// SchemaSet holds the compiled sections of a schema file. A section missing
// from the file is nil.
type SchemaSet struct {
	List   *Schema
	Detail *Schema
}

// Section returns the schema named "list" or "detail".
func (ss *SchemaSet) Section(name string) (*Schema, bool) {
	switch name {
	case "list":
		return ss.List, ss.List != nil
	case "detail":
		return ss.Detail, ss.Detail != nil
	default:
		return nil, false
	}
}
