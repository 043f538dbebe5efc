package domain

import (
	"fmt"
	"sort"
	"strings"
)

// InputKind tags the variant held by an Input.
type InputKind int

const (
	KindUnknown InputKind = iota
	KindText
	KindTexts
	KindRecord
	KindTable
)

func (k InputKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindTexts:
		return "texts"
	case KindRecord:
		return "record"
	case KindTable:
		return "table"
	default:
		return "unknown"
	}
}

// Input is an ingestion payload. Exactly one of the variant fields is
// meaningful, selected by Kind. Build values with the constructors below.
type Input struct {
	Kind   InputKind
	Text   string
	Texts  []string
	Record map[string]string
	Rows   [][]string

	Source string
	Tenant string
}

func TextInput(text string) Input {
	return Input{Kind: KindText, Text: text}
}

func TextsInput(texts []string) Input {
	return Input{Kind: KindTexts, Texts: texts}
}

func RecordInput(record map[string]string) Input {
	return Input{Kind: KindRecord, Record: record}
}

func TableInput(rows [][]string) Input {
	return Input{Kind: KindTable, Rows: rows}
}

// Documents resolves the variant into the texts that should be chunked.
func (in Input) Documents() ([]string, error) {
	switch in.Kind {
	case KindText:
		return []string{in.Text}, nil
	case KindTexts:
		return in.Texts, nil
	case KindRecord:
		return []string{renderRecord(in.Record)}, nil
	case KindTable:
		return nil, fmt.Errorf("%w: tabular input needs a parser, got %d rows", ErrInput, len(in.Rows))
	default:
		return nil, fmt.Errorf("%w: unsupported input kind %s", ErrInput, in.Kind)
	}
}

func renderRecord(record map[string]string) string {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(record[k])
	}
	return sb.String()
}
