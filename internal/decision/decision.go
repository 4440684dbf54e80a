// Package decision parses the registry's decision document, whose Content
// field carries an HTML fragment, into structured decision fields.
package decision

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// dateLayout is the registry's fixed fractional-second timestamp format.
const dateLayout = "2006-01-02T15:04:05.000"

// makerSelector matches the element carrying the decision maker's name
// inside the decision HTML.
const makerSelector = ".DecisionMaker"

// Details are the structured fields extracted from one decision document.
type Details struct {
	MakerName    string
	MakerTitle   string
	SectionOfLaw string
	DecisionDate time.Time
}

// ParsingError reports a missing structured field or an unparseable date.
type ParsingError struct {
	Field string
	Cause error
}

func (e *ParsingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decision details: field %s: %v", e.Field, e.Cause)
	}
	return fmt.Sprintf("decision details: field %s missing", e.Field)
}

func (e *ParsingError) Unwrap() error { return e.Cause }

// DecisionError reports decision content whose HTML lacks the maker
// marker. The offending HTML is carried for diagnosis.
type DecisionError struct {
	HTML string
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("decision maker not found in decision content: %s", e.HTML)
}

type payload struct {
	Content      string `json:"Content"`
	Organizer    string `json:"Organizer"`
	Section      string `json:"Section"`
	DateDecision string `json:"DateDecision"`
}

// Parse extracts the decision details from the raw registry response.
func Parse(raw []byte) (*Details, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &ParsingError{Field: "Content", Cause: err}
	}

	if p.Organizer == "" {
		return nil, &ParsingError{Field: "Organizer"}
	}
	if p.Section == "" {
		return nil, &ParsingError{Field: "Section"}
	}
	if p.DateDecision == "" {
		return nil, &ParsingError{Field: "DateDecision"}
	}

	decisionDate, err := time.Parse(dateLayout, p.DateDecision)
	if err != nil {
		return nil, &ParsingError{Field: "DateDecision", Cause: err}
	}

	name, err := scrapeMakerName(p.Content)
	if err != nil {
		return nil, err
	}

	return &Details{
		MakerName:    name,
		MakerTitle:   p.Organizer,
		SectionOfLaw: p.Section + " §",
		DecisionDate: decisionDate,
	}, nil
}

func scrapeMakerName(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", &DecisionError{HTML: html}
	}

	sel := doc.Find(makerSelector).First()
	name := strings.TrimSpace(sel.Text())
	if sel.Length() == 0 || name == "" {
		return "", &DecisionError{HTML: html}
	}
	return name, nil
}
