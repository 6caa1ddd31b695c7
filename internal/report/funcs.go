package report

import (
	"html/template"
	"strings"
	texttemplate "text/template"
)

// cellEscaper only escapes what would change the markup. Quotes stay
// literal so inspected strings read as "name": "value".
var cellEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeCell(s string) template.HTML {
	return template.HTML(cellEscaper.Replace(s)) //nolint:gosec // &, < and > are escaped above
}

var htmlFuncs = template.FuncMap{
	"cell":      escapeCell,
	"inspect":   Inspect,
	"fieldsets": Fieldsets,
}

var textFuncs = texttemplate.FuncMap{
	"cell":      func(s string) string { return s },
	"inspect":   Inspect,
	"fieldsets": Fieldsets,
}
