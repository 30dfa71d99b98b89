package views

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/belkagoyda/orex-workspace/internal/web/models"
)

func TestRenderPages(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	session := &models.Session{Username: "operator"}

	tests := []struct {
		page     string
		data     map[string]any
		contains []string
	}{
		{
			page:     "login",
			data:     map[string]any{"Next": "/orex-ws", "Error": "Invalid username or password"},
			contains: []string{`name="fingerprint"`, "Invalid username or password"},
		},
		{
			page:     "tables",
			data:     map[string]any{"Session": session, "Tables": []string{"letters", "codes"}},
			contains: []string{"/orex-ws/table?name=letters", "operator"},
		},
		{
			page: "table",
			data: map[string]any{
				"Session":    session,
				"Table":      "letters",
				"Singular":   "letter",
				"PrimaryKey": "id",
				"Columns":    []string{"id", "client"},
				"Rows": []map[string]any{
					{"ID": "7", "Cells": []any{int64(7), "ACME <Ltd>"}},
				},
				"Page":  1,
				"Total": 1,
			},
			contains: []string{`value="7"`, "ACME &lt;Ltd&gt;", "/orex-ws/records/letters/7"},
		},
		{
			page: "record",
			data: map[string]any{
				"Session":  session,
				"Table":    "letters",
				"Singular": "letter",
				"ID":       "7",
				"Action":   "/orex-ws/records/letters/7",
				"Fields": []map[string]any{
					{"Name": "urgent", "Input": "checkbox", "Checked": true, "Type": "BOOLEAN"},
					{"Name": "sent_on", "Input": "date", "Value": "2024-02-03", "Type": "DATE", "Required": true},
				},
			},
			contains: []string{`name="urgent" value="1" checked`, `type="date" name="sent_on" value="2024-02-03" required`, `value="DELETE"`},
		},
		{
			page: "templates",
			data: map[string]any{
				"Session":   session,
				"MaxUpload": int64(20 << 20),
				"Templates": []map[string]any{
					{"Name": "a1b2c3d4_letter.odt", "Original": "letter.odt", "Size": int64(2048), "ModTime": time.Now(), "Placeholders": []string{"client"}},
				},
			},
			contains: []string{"20.0 MiB", "2.0 KiB", "<code>$client</code>"},
		},
		{
			page:     "activity",
			data:     map[string]any{"Session": session, "Entries": []models.ActivityEntry{{Username: "operator", Action: models.ActionLogin}}, "Total": 1},
			contains: []string{"login", "1 entries"},
		},
		{
			page:     "error",
			data:     map[string]any{"Status": 404, "StatusText": "Not Found", "Message": "no such table"},
			contains: []string{"404 Not Found", "no such table"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.page, func(t *testing.T) {
			var buf bytes.Buffer
			if err := e.Render(&buf, tt.page, tt.data); err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			out := buf.String()
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q", want)
				}
			}
		})
	}
}

func TestRenderUnknownView(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var buf bytes.Buffer
	if err := e.Render(&buf, "missing", nil); err == nil {
		t.Error("Render(missing) returned nil error")
	}
	if buf.Len() != 0 {
		t.Error("Render(missing) wrote output")
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1536, "1.5 KiB"},
		{20 << 20, "20.0 MiB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.in); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
