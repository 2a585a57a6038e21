package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestProgressReporter(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf, "entities")

	p.Start(4)
	p.Update(2)
	if !strings.Contains(buf.String(), "2/4 entities 50%") {
		t.Errorf("output after Update(2) = %q", buf.String())
	}

	p.Update(9)
	if !strings.Contains(buf.String(), "4/4 entities 100%") {
		t.Errorf("Update past the total should clamp: %q", buf.String())
	}

	p.Finish()
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Errorf("Finish() did not end the line: %q", buf.String())
	}

	p.Error(errors.New("sequence conflict"))
	if !strings.Contains(buf.String(), "✗ sequence conflict") {
		t.Errorf("output after Error() = %q", buf.String())
	}
}

func TestProgressReporter_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf, "records")
	p.Start(0)
	p.Update(1)
	if buf.Len() != 0 {
		t.Errorf("zero total rendered %q", buf.String())
	}
}
