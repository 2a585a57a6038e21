package cli

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"
)

type summary struct {
	Policy  string `json:"policy" yaml:"policy"`
	Outcome string `json:"outcome" yaml:"outcome"`
}

type rendered struct{ summary }

func (r rendered) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s: %s\n", r.Policy, r.Outcome)
	return err
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format  OutputFormat
		want    string
		wantErr bool
	}{
		{"", "*cli.TextFormatter", false},
		{FormatText, "*cli.TextFormatter", false},
		{FormatJSON, "*cli.JSONFormatter", false},
		{"YAML", "*cli.YAMLFormatter", false},
		{"csv", "", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			f, err := NewFormatter(tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFormatter() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && fmt.Sprintf("%T", f) != tt.want {
				t.Errorf("NewFormatter() = %T, want %s", f, tt.want)
			}
		})
	}
}

func TestFormatters(t *testing.T) {
	data := summary{Policy: "key-size", Outcome: "compliant"}

	tests := []struct {
		name   string
		format OutputFormat
		data   any
		want   string
	}{
		{"json", FormatJSON, data, "{\n  \"policy\": \"key-size\",\n  \"outcome\": \"compliant\"\n}\n"},
		{"yaml", FormatYAML, data, "policy: key-size\noutcome: compliant\n"},
		{"text fallback", FormatText, "hello", "hello\n"},
		{"text renderer", FormatText, rendered{data}, "key-size: compliant\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFormatter(tt.format)
			if err != nil {
				t.Fatal(err)
			}
			var buf bytes.Buffer
			if err := f.FormatTo(&buf, tt.data); err != nil {
				t.Fatalf("FormatTo() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("FormatTo() = %q, want %q", buf.String(), tt.want)
			}

			b, err := f.Format(tt.data)
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			if strings.TrimSpace(string(b)) != strings.TrimSpace(tt.want) {
				t.Errorf("Format() = %q, want %q", b, tt.want)
			}
		})
	}
}
