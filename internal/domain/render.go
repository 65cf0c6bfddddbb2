package domain

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the NDBC <date> format (MM/DD/YYYY HH:MM:SS, UTC).
const DateLayout = "01/02/2006 15:04:05"

const missingLiteral = "-9999"

// FormatValue renders a channel value: integers without a decimal point,
// other values with the shortest exact representation, the sentinel as -9999.
func FormatValue(cv ChannelValue) string {
	if cv.Missing || cv.Value == MissingSentinel {
		return missingLiteral
	}
	v := cv.Value
	if v == 0 {
		return "0"
	}
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// RenderMessage writes one message block to buf.
func RenderMessage(buf *bytes.Buffer, m ExchangeMessage) {
	buf.WriteString("<message>\n")
	buf.WriteString("<station>")
	xml.EscapeText(buf, []byte(m.Station)) //nolint:errcheck // bytes.Buffer writes never fail
	buf.WriteString("</station>\n")
	fmt.Fprintf(buf, "<date>%s</date>\n", m.Time.UTC().Format(DateLayout))
	fmt.Fprintf(buf, "<missing>%s</missing>\n", missingLiteral)
	buf.WriteString("<met>\n")
	for _, c := range m.Channels {
		fmt.Fprintf(buf, "    <%s>%s</%s>\n", c.Tag, FormatValue(c), c.Tag)
	}
	buf.WriteString("</met>\n")
	buf.WriteString("</message>\n")
}

// RenderMessages concatenates message blocks in the given order.
func RenderMessages(msgs []ExchangeMessage) []byte {
	var buf bytes.Buffer
	for _, m := range msgs {
		RenderMessage(&buf, m)
	}
	return buf.Bytes()
}

type xmlMessage struct {
	Station string `xml:"station"`
	Date    string `xml:"date"`
	Missing string `xml:"missing"`
	Met     struct {
		Channels []xmlChannel `xml:",any"`
	} `xml:"met"`
}

type xmlChannel struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// ParseMessages decodes one or more concatenated message blocks. Values equal
// to the declared <missing> sentinel come back flagged as missing.
func ParseMessages(r io.Reader) ([]ExchangeMessage, error) {
	dec := xml.NewDecoder(r)
	var msgs []ExchangeMessage
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return msgs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode exchange xml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "message" {
			return nil, fmt.Errorf("unexpected element <%s>", start.Name.Local)
		}
		var raw xmlMessage
		if err := dec.DecodeElement(&raw, &start); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		msg, err := raw.toMessage()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
}

func (x xmlMessage) toMessage() (ExchangeMessage, error) {
	ts, err := time.ParseInLocation(DateLayout, strings.TrimSpace(x.Date), time.UTC)
	if err != nil {
		return ExchangeMessage{}, fmt.Errorf("parse <date> %q: %w", x.Date, err)
	}
	sentinel := MissingSentinel
	if s := strings.TrimSpace(x.Missing); s != "" {
		sentinel, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return ExchangeMessage{}, fmt.Errorf("parse <missing> %q: %w", x.Missing, err)
		}
	}

	msg := ExchangeMessage{
		Station:  strings.TrimSpace(x.Station),
		Time:     ts,
		Channels: make([]ChannelValue, 0, len(x.Met.Channels)),
	}
	for _, c := range x.Met.Channels {
		tag := c.XMLName.Local
		v, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
		if err != nil {
			return ExchangeMessage{}, fmt.Errorf("parse <%s> %q: %w", tag, c.Value, err)
		}
		if v == sentinel {
			msg.Channels = append(msg.Channels, MissingChannel(tag))
			continue
		}
		msg.Channels = append(msg.Channels, ChannelValue{Tag: tag, Value: v})
	}
	return msg, nil
}
