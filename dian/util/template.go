package util

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"strings"
	"text/template"
)

var funcMap = template.FuncMap{
	"base64": base64.StdEncoding.EncodeToString,
	"escape": escapeXML,
}

// MergeTemplate executes tpl against model. Templates get base64 for byte
// payloads and escape for text placed inside XML elements.
func MergeTemplate(tpl *string, model any) ([]byte, error) {
	tmpl, err := template.New("request").Funcs(funcMap).Parse(*tpl)
	if err != nil {
		return nil, err
	}

	var output bytes.Buffer

	err = tmpl.Execute(&output, model)
	if err != nil {
		return nil, err
	}
	return output.Bytes(), nil
}

func escapeXML(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
