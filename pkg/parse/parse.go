// Package parse turns model server response bodies into the text shown to the user.
package parse

import (
	"fmt"
	"strings"

	"github.com/emirpasic/gods/sets/linkedhashset"
	jsoniter "github.com/json-iterator/go"
	"github.com/yylt/ocrmux/pkg"
	"github.com/yylt/ocrmux/pkg/util"
	"k8s.io/klog/v2"
)

// NoTextFound is returned when a completion carries no choice content.
const NoTextFound = "No text found in the image."

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// one JSON-lines entry, {"message": {"content": "..."}}
type chunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

type completion struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Fragments extracts the trimmed, non-empty message contents of a JSON-lines
// body in input order. Lines which are not JSON objects are skipped.
func Fragments(body string) []string {
	ret, _ := fragments(body)
	return ret
}

// fragments also counts the lines which decoded, empty content included.
func fragments(body string) ([]string, int) {
	var (
		parsed int
		lines  = strings.FieldsFunc(body, func(r rune) bool { return r == '\n' || r == '\r' })
		ret    = make([]string, 0, len(lines))
	)
	for _, line := range lines {
		var c chunk
		err := json.UnmarshalFromString(line, &c)
		if err != nil {
			klog.V(4).Infof("skip line which is not json: %v, content: %s", err, line)
			continue
		}
		parsed++
		content := strings.TrimSpace(c.Message.Content)
		if content == "" {
			continue
		}
		ret = append(ret, content)
	}
	return ret, parsed
}

// Dedup drops exact repeats, keeping the first occurrence of each fragment.
func Dedup(fragments []string) []string {
	set := linkedhashset.New()
	for _, f := range fragments {
		set.Add(f)
	}
	ret := make([]string, 0, set.Size())
	for _, v := range set.Values() {
		ret = append(ret, v.(string))
	}
	return ret
}

// Lines parses a JSON-lines body into one space-joined, deduplicated string.
// A non-empty body without a single JSON line returns *pkg.ParseError.
func Lines(body string) (string, error) {
	frags, parsed := fragments(body)
	if parsed == 0 && strings.TrimSpace(body) != "" {
		return "", &pkg.ParseError{Raw: body, Err: fmt.Errorf("no json line in %d bytes", len(body))}
	}
	buf := util.GetBuf()
	defer util.PutBuf(buf)
	for i, f := range Dedup(frags) {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(f)
	}
	return buf.String(), nil
}

// Completion reads choices[0].message.content of a single chat completion
// document. A body which is not such a document returns *pkg.ParseError.
func Completion(body string) (string, error) {
	var c completion
	err := json.UnmarshalFromString(body, &c)
	if err != nil {
		return "", &pkg.ParseError{Raw: body, Err: err}
	}
	if len(c.Choices) == 0 || c.Choices[0].Message == nil || c.Choices[0].Message.Content == nil {
		return NoTextFound, nil
	}
	return strings.TrimSpace(*c.Choices[0].Message.Content), nil
}
