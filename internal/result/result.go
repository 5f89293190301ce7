// Package result defines the typed outcome of answering one question.
package result

import (
	"encoding/json"
	"fmt"

	"github.com/KaramelBytes/dataloom-cli/internal/chart"
	"github.com/KaramelBytes/dataloom-cli/internal/frame"
)

// Kind labels a payload variant.
type Kind string

const (
	KindText  Kind = "text"
	KindTable Kind = "table"
	KindPlot  Kind = "plot"
	KindError Kind = "error"
)

// Payload is one of Text, Table, Plot or Error. The set is closed.
type Payload interface {
	Kind() Kind
	isPayload()
}

// Text is a plain textual answer.
type Text struct{ Content string }

// Table is a tabular answer.
type Table struct{ Frame *frame.Frame }

// Plot is a chart answer.
type Plot struct{ Figure *chart.Figure }

// Error is a failure surfaced to the user instead of a crash.
type Error struct{ Message string }

func (Text) Kind() Kind  { return KindText }
func (Table) Kind() Kind { return KindTable }
func (Plot) Kind() Kind  { return KindPlot }
func (Error) Kind() Kind { return KindError }

func (Text) isPayload()  {}
func (Table) isPayload() {}
func (Plot) isPayload()  {}
func (Error) isPayload() {}

type envelope struct {
	Type    Kind `json:"type"`
	Content any  `json:"content"`
}

func (p Text) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{Type: KindText, Content: p.Content})
}

func (p Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{Type: KindTable, Content: p.Frame})
}

func (p Plot) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{Type: KindPlot, Content: p.Figure})
}

func (p Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{Type: KindError, Content: p.Message})
}

// Summary is a short one-line description used in logs and listings.
func Summary(p Payload) string {
	switch v := p.(type) {
	case Text:
		return truncate(v.Content, 80)
	case Table:
		if v.Frame == nil {
			return "table (empty)"
		}
		return fmt.Sprintf("table %dx%d", v.Frame.NumRows(), v.Frame.NumCols())
	case Plot:
		if v.Figure == nil {
			return "plot"
		}
		return v.Figure.Describe()
	case Error:
		return "error: " + truncate(v.Message, 80)
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
