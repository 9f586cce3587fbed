package extraction

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// LoadedDocument is a local file reduced to plain text
type LoadedDocument struct {
	Title string
	Text  string
}

// LoadDocument reads a local .txt, .md, .html or .htm file and returns its
// text. HTML is stripped of script/style/nav/footer chrome; the page title
// becomes the document title when present, the file name otherwise.
func LoadDocument(path string) (*LoadedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		title, text, err := extractHTMLText(data)
		if err != nil {
			return nil, err
		}
		if title == "" {
			title = name
		}
		return &LoadedDocument{Title: title, Text: text}, nil
	default:
		// .txt, .md and anything else read as plain text
		return &LoadedDocument{Title: name, Text: string(data)}, nil
	}
}

func extractHTMLText(data []byte) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, nav, footer, noscript").Remove()
	body := doc.Find("body")
	if body.Length() > 0 {
		text = body.Text()
	} else {
		text = doc.Text()
	}

	return title, strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " ")), nil
}
