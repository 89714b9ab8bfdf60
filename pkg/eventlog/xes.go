package eventlog

import (
	"encoding/xml"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/erpflow/erpflow/pkg/errors"
)

// XES standard attribute keys.
const (
	xesConceptName = "concept:name"
	xesTimestamp   = "time:timestamp"
	xesOrgResource = "org:resource"
)

// LoadXES reads an event log from an XES stream. Parsing is token-based so
// large logs never need to fit a DOM in memory. Standard extension keys
// (concept:name, time:timestamp, org:resource) map onto the event fields;
// every other attribute lands in Event.Attributes.
func LoadXES(r io.Reader, name string) (*Log, error) {
	dec := xml.NewDecoder(r)
	log := New(name)

	var (
		inTrace      bool
		inEvent      bool
		caseID       string
		caseSeq      int
		current      Event
		pendingTrace []Event
	)

	flushTrace := func() error {
		if caseID == "" {
			caseSeq++
			caseID = "case_" + strconv.Itoa(caseSeq)
		}
		tr := NewTrace(caseID)
		for _, ev := range pendingTrace {
			if err := tr.Append(ev); err != nil {
				return err
			}
		}
		if err := log.AddTrace(tr); err != nil {
			return err
		}
		caseID = ""
		pendingTrace = nil
		return nil
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeLogParseFailed, "XES parse error")
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "trace":
				inTrace = true
			case "event":
				if inTrace {
					inEvent = true
					current = Event{}
				}
			case "string", "date", "int", "float", "boolean":
				key, value := xesAttr(el)
				switch {
				case inEvent:
					if err := applyEventAttr(&current, el.Name.Local, key, value); err != nil {
						return nil, err
					}
				case inTrace:
					if key == xesConceptName {
						caseID = value
					}
				}
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "event":
				if inEvent {
					pendingTrace = append(pendingTrace, current)
					inEvent = false
				}
			case "trace":
				if inTrace {
					if err := flushTrace(); err != nil {
						return nil, err
					}
					inTrace = false
				}
			}
		}
	}

	return log, nil
}

// LoadXESFile reads an event log from an XES file on disk.
func LoadXESFile(path string) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeLogParseFailed, "failed to open %q", path)
	}
	defer f.Close()

	name := strings.TrimSuffix(fileBase(path), ".xes")
	return LoadXES(f, name)
}

func xesAttr(el xml.StartElement) (key, value string) {
	for _, attr := range el.Attr {
		switch attr.Name.Local {
		case "key":
			key = attr.Value
		case "value":
			value = attr.Value
		}
	}
	return key, value
}

func applyEventAttr(ev *Event, kind, key, value string) error {
	switch key {
	case xesConceptName:
		ev.Activity = value
		return nil
	case xesOrgResource:
		ev.Resource = value
		return nil
	case xesTimestamp:
		ts, err := time.Parse(time.RFC3339, value)
		if err != nil {
			ts, err = ParseTimestamp(value, "")
			if err != nil {
				return err
			}
		}
		ev.Timestamp = ts
		return nil
	}

	if ev.Attributes == nil {
		ev.Attributes = make(map[string]interface{})
	}
	switch kind {
	case "int":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			ev.Attributes[key] = n
			return nil
		}
	case "float":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			ev.Attributes[key] = f
			return nil
		}
	case "boolean":
		if b, err := strconv.ParseBool(value); err == nil {
			ev.Attributes[key] = b
			return nil
		}
	}
	ev.Attributes[key] = value
	return nil
}
