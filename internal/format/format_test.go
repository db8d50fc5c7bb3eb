package format

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	ID    string `json:"id" yaml:"id"`
	Count int    `json:"count" yaml:"count"`
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (JSONFormatter{}).Write(&buf, sample{ID: "a", Count: 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := buf.String(); got != "{\"id\":\"a\",\"count\":2}\n" {
		t.Fatalf("unexpected json: %q", got)
	}
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (YAMLFormatter{}).Write(&buf, sample{ID: "a", Count: 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := buf.String(); got != "id: a\ncount: 2\n" {
		t.Fatalf("unexpected yaml: %q", got)
	}
}

func TestForName(t *testing.T) {
	for _, name := range []string{"json", "JSON", " yaml ", "yml"} {
		if _, err := ForName(name); err != nil {
			t.Fatalf("%q: %v", name, err)
		}
	}
	_, err := ForName("xml")
	if err == nil || !strings.Contains(err.Error(), "xml") {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}
