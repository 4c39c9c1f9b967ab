package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/encoding/simplifiedchinese"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText returns b as UTF-8. Input that is not valid UTF-8 is decoded as
// GB18030, which covers GBK exports from Chinese spreadsheet tools.
func decodeText(b []byte) string {
	b = bytes.TrimPrefix(b, utf8BOM)
	if utf8.Valid(b) {
		return string(b)
	}
	decoded, err := simplifiedchinese.GB18030.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(decoded)
}

func extractText(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return decodeText(b), nil
}

// extractCSV renders each record as a line of comma-joined fields.
func extractCSV(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	r := csv.NewReader(strings.NewReader(decodeText(b)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var sb strings.Builder
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		line := strings.TrimSpace(strings.Join(record, ", "))
		if line == "" || strings.Trim(line, ", ") == "" {
			continue
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

var htmlPolicy = bluemonday.UGCPolicy()

const htmlBlocks = "p, div, section, article, header, footer, li, tr, h1, h2, h3, h4, h5, h6, pre, blockquote, table"

// extractHTML sanitizes the page, which drops scripts and styles with their
// content, and returns the text with block elements on their own lines.
func extractHTML(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return htmlText(decodeText(b))
}

func htmlText(page string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlPolicy.Sanitize(page)))
	if err != nil {
		return "", err
	}

	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("td, th").AppendHtml("\t")
	doc.Find(htmlBlocks).AppendHtml("\n")

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
