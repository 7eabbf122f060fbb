package document

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// Title returns the text of the first <title> element in the document head,
// or "" if there is none. It stops tokenizing at <body>.
func Title(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	inTitle := false
	var sb strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(sb.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "title":
				inTitle = true
			case "body":
				return ""
			}
		case html.TextToken:
			if inTitle {
				sb.Write(z.Text())
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if inTitle && string(name) == "title" {
				return strings.Join(strings.Fields(sb.String()), " ")
			}
		}
	}
}

const maxFileNameLen = 80

// FileName turns a document title into a safe PDF file name.
// Empty or unusable titles fall back to "document.pdf".
func FileName(title string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			sb.WriteRune(r)
			dash = false
		case r == '_' || r == '.':
			sb.WriteRune(r)
			dash = false
		default:
			if sb.Len() > 0 && !dash {
				sb.WriteByte('-')
				dash = true
			}
		}
		if sb.Len() >= maxFileNameLen {
			break
		}
	}
	name := strings.Trim(sb.String(), "-._")
	if name == "" {
		name = "document"
	}
	return name + ".pdf"
}
