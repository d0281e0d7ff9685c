package service

import "strings"

// RenderTemplate substitutes {placeholder} tokens with lead fields.
// Unknown placeholders are left in place so a typo in a template is
// visible in the sent mail instead of silently vanishing.
func RenderTemplate(tpl string, fields map[string]string) string {
	out := tpl
	for key, value := range fields {
		out = strings.ReplaceAll(out, "{"+key+"}", value)
	}
	return out
}
