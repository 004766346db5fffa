// Package xmltv models the XMLTV guide document the engine writes for the
// downstream channel manager, plus the atomic file write that replaces it.
package xmltv

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TimeFormat is the XMLTV timestamp layout. All emitted times are UTC.
const TimeFormat = "20060102150405 +0000"

// FormatTime renders t in XMLTV form.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime reads an XMLTV timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeFormat, s)
}

type Document struct {
	XMLName    xml.Name    `xml:"tv"`
	Source     string      `xml:"source-info-name,attr,omitempty"`
	Generator  string      `xml:"generator-info-name,attr,omitempty"`
	Channels   []Channel   `xml:"channel"`
	Programmes []Programme `xml:"programme"`
}

type Channel struct {
	ID      string `xml:"id,attr"`
	Display string `xml:"display-name"`
	Icon    *Icon  `xml:"icon,omitempty"`
}

type Icon struct {
	Src string `xml:"src,attr"`
}

type Programme struct {
	Start    string `xml:"start,attr"`
	Stop     string `xml:"stop,attr"`
	Channel  string `xml:"channel,attr"`
	Title    Value  `xml:"title"`
	SubTitle *Value `xml:"sub-title,omitempty"`
	Desc     *Value `xml:"desc,omitempty"`
	Category *Value `xml:"category,omitempty"`
}

type Value struct {
	Lang  string `xml:"lang,attr,omitempty"`
	Value string `xml:",chardata"`
}

func Text(s string) Value { return Value{Lang: "en", Value: s} }

func TextPtr(s string) *Value {
	if s == "" {
		return nil
	}
	v := Text(s)
	return &v
}

// New returns an empty document stamped with the engine identity.
func New() *Document {
	return &Document{Source: "eventarr", Generator: "eventarr"}
}

// Merge appends another document's content, dropping channels whose id is
// already present. Programmes are kept as-is; a channel id collision means
// the same channel was emitted by two generators and the first one's
// programmes already cover it.
func (d *Document) Merge(other *Document) {
	seen := make(map[string]bool, len(d.Channels))
	for _, c := range d.Channels {
		seen[c.ID] = true
	}
	dup := make(map[string]bool)
	for _, c := range other.Channels {
		if seen[c.ID] {
			dup[c.ID] = true
			continue
		}
		seen[c.ID] = true
		d.Channels = append(d.Channels, c)
	}
	for _, p := range other.Programmes {
		if dup[p.Channel] {
			continue
		}
		d.Programmes = append(d.Programmes, p)
	}
}

// Encode renders the document with the XML header.
func (d *Document) Encode() ([]byte, error) {
	body, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), append(body, '\n')...), nil
}

// WriteFile atomically replaces path with the document: write to a temp file
// in the same directory, fsync, rename. The previous file survives as
// path.bak so a crashed write never leaves the downstream with half a guide.
func (d *Document) WriteFile(path string) error {
	data, err := d.Encode()
	if err != nil {
		return fmt.Errorf("xmltv: encode: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".eventarr-xmltv-*")
	if err != nil {
		return fmt.Errorf("xmltv: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("xmltv: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("xmltv: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".bak"); err != nil {
			return fmt.Errorf("xmltv: backup: %w", err)
		}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("xmltv: replace: %w", err)
	}
	return nil
}

// ReadFile parses an existing guide document.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Document
	if err := xml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("xmltv: parse %s: %w", path, err)
	}
	return &d, nil
}
