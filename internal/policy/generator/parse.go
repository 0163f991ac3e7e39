package generator

import (
	"bufio"
	"encoding/json"
	"regexp"
	"strings"

	policydomain "github.com/jamesbarnes665/compliGenie-backend/internal/policy/domain"
)

const (
	minPageCount  = 8
	wordsPerPage  = 250
	fallbackTitle = policydomain.DefaultTitle
)

var numberedHeader = regexp.MustCompile(`^\d+\.`)

// Parse turns generator output into a title and ordered sections. JSON output
// is preferred. Anything else is split on header lines. Output with no
// recognizable structure becomes a single section.
func Parse(content string) (string, []policydomain.Section, error) {
	if strings.TrimSpace(content) == "" {
		return "", nil, policydomain.ErrEmptyContent
	}

	var doc generatedDocument
	title := ""
	var sections []policydomain.Section
	if err := json.Unmarshal([]byte(content), &doc); err == nil {
		title = doc.Title
		sections = doc.Sections
	} else {
		sections = splitOnHeaders(content)
	}

	if strings.TrimSpace(title) == "" {
		title = fallbackTitle
	}
	if len(sections) == 0 {
		sections = []policydomain.Section{{Title: fallbackTitle, Content: content, Order: 1}}
	}
	for i := range sections {
		if sections[i].Order == 0 {
			sections[i].Order = i + 1
		}
	}
	return title, sections, nil
}

// PageCount estimates rendered pages from the word count.
func PageCount(words int) int {
	pages := (words + wordsPerPage - 1) / wordsPerPage
	if pages < minPageCount {
		return minPageCount
	}
	return pages
}

func isHeaderLine(line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	return strings.HasPrefix(line, "#") || numberedHeader.MatchString(line)
}

func splitOnHeaders(text string) []policydomain.Section {
	var (
		sections []policydomain.Section
		current  *policydomain.Section
		body     strings.Builder
	)
	flush := func() {
		if current == nil {
			return
		}
		current.Content = strings.TrimSpace(body.String())
		sections = append(sections, *current)
		body.Reset()
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if isHeaderLine(line) {
			flush()
			current = &policydomain.Section{
				Title: strings.TrimSpace(line),
				Order: len(sections) + 1,
			}
			continue
		}
		if current != nil {
			body.WriteString(line)
			body.WriteByte('\n')
		}
	}
	flush()
	return sections
}
