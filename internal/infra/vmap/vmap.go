// Package vmap parses IAB VMAP 1.0 documents into ad breaks.
package vmap

import (
	"bytes"
	"encoding/xml"
	"os"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/adbreak/internal/domain/adbreak"
)

// Errors
var (
	ErrNotVMAP    = errors.New("vmap: input does not contain a VMAP document")
	ErrParse      = errors.New("vmap: failed to parse VMAP XML")
	ErrBreakField = errors.New("vmap: invalid ad break")
)

// VMAP is the document root. Element names are matched without regard to
// namespace prefix.
type VMAP struct {
	XMLName  xml.Name  `xml:"VMAP"`
	Version  string    `xml:"version,attr"`
	AdBreaks []AdBreak `xml:"AdBreak"`
}

// AdBreak is a raw vmap:AdBreak element.
type AdBreak struct {
	TimeOffset     string          `xml:"timeOffset,attr"`
	BreakType      string          `xml:"breakType,attr"`
	BreakID        string          `xml:"breakId,attr"`
	RepeatAfter    string          `xml:"repeatAfter,attr"`
	AdSource       *AdSource       `xml:"AdSource"`
	TrackingEvents []Tracking      `xml:"TrackingEvents>Tracking"`
	Extensions     *InnerXMLHolder `xml:"Extensions"`
}

// AdSource is a raw vmap:AdSource element.
type AdSource struct {
	ID               string      `xml:"id,attr"`
	AllowMultipleAds string      `xml:"allowMultipleAds,attr"`
	FollowRedirects  string      `xml:"followRedirects,attr"`
	AdTagURI         *AdTagURI   `xml:"AdTagURI"`
	VASTAdData       *VASTAdData `xml:"VASTAdData"`
}

// AdTagURI holds the VAST request URL.
type AdTagURI struct {
	TemplateType string `xml:"templateType,attr"`
	Value        string `xml:",chardata"`
}

// VASTAdData holds an inline VAST document.
type VASTAdData struct {
	InnerXML string `xml:",innerxml"`
}

// Tracking is one break-level tracking URL.
type Tracking struct {
	Event string `xml:"event,attr"`
	URL   string `xml:",chardata"`
}

// InnerXMLHolder keeps unparsed content.
type InnerXMLHolder struct {
	InnerXML string `xml:",innerxml"`
}

// Parse decodes a VMAP document.
func Parse(data []byte) (*VMAP, error) {
	if !bytes.Contains(data, []byte("VMAP")) {
		return nil, ErrNotVMAP
	}

	var doc VMAP
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(ErrParse, err.Error())
	}
	return &doc, nil
}

// ParseFile reads and decodes a VMAP file.
func ParseFile(path string) (*VMAP, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "vmap: failed to read %s", path)
	}
	return Parse(data)
}

// AdBreaks converts every break in document order. Breaks that cannot be
// converted are skipped and reported in the returned error slice.
func (v *VMAP) AdBreaks() ([]*adbreak.AdBreak, []error) {
	var (
		breaks []*adbreak.AdBreak
		errs   []error
	)
	for i := range v.AdBreaks {
		b, err := v.AdBreaks[i].Convert()
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "break #%d", i+1))
			continue
		}
		breaks = append(breaks, b)
	}
	return breaks, errs
}

// Convert maps a raw break onto the domain model.
func (b *AdBreak) Convert() (*adbreak.AdBreak, error) {
	offset, err := adbreak.ParseTimeOffset(strings.TrimSpace(b.TimeOffset))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(b.BreakType) == "" {
		return nil, errors.Wrapf(ErrBreakField, "breakType is required (breakId=%q)", b.BreakID)
	}

	out := &adbreak.AdBreak{
		TimeOffset: offset,
		BreakType:  strings.TrimSpace(b.BreakType),
		BreakID:    b.BreakID,
	}

	if src := b.AdSource; src != nil {
		out.AdSource = adbreak.AdSource{
			ID:               src.ID,
			AllowMultipleAds: parseBool(src.AllowMultipleAds, false),
			FollowRedirects:  parseBool(src.FollowRedirects, true),
		}
		if src.AdTagURI != nil {
			out.AdSource.AdTagURI = strings.TrimSpace(src.AdTagURI.Value)
			out.AdSource.TemplateType = src.AdTagURI.TemplateType
		}
		if src.VASTAdData != nil {
			out.AdSource.VASTAdData = strings.TrimSpace(src.VASTAdData.InnerXML)
		}
	}

	for _, t := range b.TrackingEvents {
		url := strings.TrimSpace(t.URL)
		if t.Event == "" || url == "" {
			continue
		}
		if out.TrackingEvents == nil {
			out.TrackingEvents = make(map[string][]string)
		}
		out.TrackingEvents[t.Event] = append(out.TrackingEvents[t.Event], url)
	}
	return out, nil
}

func parseBool(s string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	default:
		return def
	}
}
