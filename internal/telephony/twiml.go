package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

type twimlPlay struct {
	XMLName xml.Name `xml:"Play"`
	URL     string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// BuildInstructions renders the document played to the callee: an optional pause, the
// recording, then hangup. The same document is used for humans and machines.
func BuildInstructions(audioURL string, postBeepDelaySeconds int) (string, error) {
	if strings.TrimSpace(audioURL) == "" {
		return "", errors.New("telephony: audio url required")
	}
	var r twimlResponse
	if postBeepDelaySeconds > 0 {
		r.Verbs = append(r.Verbs, twimlPause{Length: postBeepDelaySeconds})
	}
	r.Verbs = append(r.Verbs, twimlPlay{URL: audioURL}, twimlHangup{})
	return render(r)
}

// HangupDocument ends the call without playing anything.
func HangupDocument() string {
	doc, err := render(twimlResponse{Verbs: []any{twimlHangup{}}})
	if err != nil {
		return xml.Header + "<Response><Hangup></Hangup></Response>"
	}
	return doc
}

func render(r twimlResponse) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
