package sipua

import (
	"encoding/xml"
	"fmt"
)

const pidfContentType = "application/pidf+xml"

type pidfPresence struct {
	XMLName xml.Name  `xml:"urn:ietf:params:xml:ns:pidf presence"`
	Entity  string    `xml:"entity,attr"`
	Tuple   pidfTuple `xml:"tuple"`
	Note    string    `xml:"note,omitempty"`
}

type pidfTuple struct {
	ID     string     `xml:"id,attr"`
	Status pidfStatus `xml:"status"`
}

type pidfStatus struct {
	Basic string `xml:"basic"`
}

// buildPIDF документ присутствия. Заметка "-" публикует закрытый статус.
func buildPIDF(entity, tupleID, note string) ([]byte, error) {
	doc := pidfPresence{
		Entity: entity,
		Tuple: pidfTuple{
			ID:     tupleID,
			Status: pidfStatus{Basic: "open"},
		},
		Note: note,
	}
	if note == "-" {
		doc.Tuple.Status.Basic = "closed"
		doc.Note = ""
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки PIDF: %w", err)
	}
	return append([]byte(xml.Header), data...), nil
}
