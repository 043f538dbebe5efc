package domain

import (
	"errors"
	"testing"
)

func TestInputDocuments(t *testing.T) {
	docs, err := TextInput("hello").Documents()
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0] != "hello" {
		t.Errorf("unexpected docs: %v", docs)
	}

	docs, err = TextsInput([]string{"a", "b"}).Documents()
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Errorf("expected 2 docs, got %d", len(docs))
	}
}

func TestRecordInputIsRenderedSorted(t *testing.T) {
	docs, err := RecordInput(map[string]string{"b": "2", "a": "1"}).Documents()
	if err != nil {
		t.Fatal(err)
	}
	if docs[0] != "a: 1\nb: 2" {
		t.Errorf("unexpected record rendering: %q", docs[0])
	}
}

func TestRejectedInputs(t *testing.T) {
	cases := []Input{
		{},
		TableInput([][]string{{"x", "y"}}),
	}
	for _, in := range cases {
		if _, err := in.Documents(); !errors.Is(err, ErrInput) {
			t.Errorf("kind %s: expected ErrInput, got %v", in.Kind, err)
		}
	}
}
