package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestCleanKey(t *testing.T) {
	cases := []struct {
		key  string
		want string
		ok   bool
	}{
		{"exports/a.csv", "exports/a.csv", true},
		{"exports/./a.csv", "exports/a.csv", true},
		{"a.csv", "a.csv", true},
		{"", "", false},
		{"/etc/passwd", "", false},
		{"../outside", "", false},
		{"exports/../../outside", "", false},
	}
	for _, c := range cases {
		got, err := cleanKey(c.key)
		if c.ok && (err != nil || got != c.want) {
			t.Errorf("cleanKey(%q) = %q, %v; want %q", c.key, got, err, c.want)
		}
		if !c.ok && !errors.Is(err, ErrBadKey) {
			t.Errorf("cleanKey(%q) err = %v, want ErrBadKey", c.key, err)
		}
	}
}

func TestLocalRoundTrip(t *testing.T) {
	p := NewLocalProvider(t.TempDir())

	w, errChan := p.StreamToFile(context.Background(), "exports/job-1.csv")
	if w == nil {
		t.Fatalf("no writer: %v", <-errChan)
	}
	if _, err := io.WriteString(w, "id,name\n1,alpha\n"); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := <-errChan; err != nil {
		t.Fatalf("settle error: %v", err)
	}

	r, err := p.OpenFile(context.Background(), "exports/job-1.csv")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "id,name\n1,alpha\n" {
		t.Errorf("read back %q", data)
	}
}

func TestLocalRejectsEscapingKey(t *testing.T) {
	p := NewLocalProvider(t.TempDir())

	w, errChan := p.StreamToFile(context.Background(), "../evil.csv")
	if w != nil {
		t.Fatal("expected no writer for escaping key")
	}
	if err := <-errChan; !errors.Is(err, ErrBadKey) {
		t.Errorf("settle err = %v, want ErrBadKey", err)
	}

	if _, err := p.OpenFile(context.Background(), "/etc/passwd"); !errors.Is(err, ErrBadKey) {
		t.Errorf("open err = %v, want ErrBadKey", err)
	}
}

func TestLocalDownloadURL(t *testing.T) {
	p := NewLocalProvider(t.TempDir())
	url := p.GetDownloadURL("exports/job-1.csv")
	if !strings.HasPrefix(url, "file://") || !strings.HasSuffix(url, "exports/job-1.csv") {
		t.Errorf("url = %q", url)
	}
}
