package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	docxBodyPart = "word/document.xml"
	docxRelsPart = "word/_rels/document.xml.rels"
)

var errNoDocumentPart = errors.New("missing " + docxBodyPart)

// DOCXText extracts the text of a Word document, paragraphs separated by a
// blank line. Table rows become one line with cells joined by " | ".
// External hyperlinks are rendered as Markdown links so their targets
// survive.
func DOCXText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}

	var body, rels []byte
	for _, f := range zr.File {
		switch f.Name {
		case docxBodyPart:
			body, err = readZipFile(f)
		case docxRelsPart:
			rels, err = readZipFile(f)
		}
		if err != nil {
			return "", err
		}
	}
	if body == nil {
		return "", fmt.Errorf("open docx: %w", errNoDocumentPart)
	}

	targets, err := docxTargets(rels)
	if err != nil {
		return "", err
	}
	return docxBodyText(body, targets)
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}

type docxRelationships struct {
	Relationships []struct {
		ID         string `xml:"Id,attr"`
		Target     string `xml:"Target,attr"`
		TargetMode string `xml:"TargetMode,attr"`
	} `xml:"Relationship"`
}

// docxTargets maps relationship IDs to external hyperlink targets.
func docxTargets(data []byte) (map[string]string, error) {
	targets := make(map[string]string)
	if data == nil {
		return targets, nil
	}

	var rels docxRelationships
	if err := xml.Unmarshal(data, &rels); err != nil {
		return nil, fmt.Errorf("parse %s: %w", docxRelsPart, err)
	}
	for _, r := range rels.Relationships {
		if r.TargetMode == "External" {
			targets[r.ID] = strings.TrimSpace(r.Target)
		}
	}
	return targets, nil
}

// docxWriter accumulates body text while walking document.xml.
type docxWriter struct {
	targets map[string]string

	paras []string
	para  strings.Builder

	cell     []string
	row      []string
	cellOpen int

	inText bool
	inLink bool
	href   string
	label  strings.Builder
}

func (d *docxWriter) write(s string) {
	if d.inLink {
		d.label.WriteString(s)
		return
	}
	d.para.WriteString(s)
}

func (d *docxWriter) start(el xml.StartElement) {
	switch el.Name.Local {
	case "t":
		d.inText = true
	case "tab":
		d.write("\t")
	case "br", "cr":
		d.write("\n")
	case "hyperlink":
		d.inLink = true
		d.href = ""
		d.label.Reset()
		for _, a := range el.Attr {
			if a.Name.Local == "id" {
				d.href = d.targets[a.Value]
			}
		}
	case "tc":
		d.cellOpen++
		d.cell = nil
	}
}

func (d *docxWriter) end(el xml.EndElement) {
	switch el.Name.Local {
	case "t":
		d.inText = false
	case "hyperlink":
		d.inLink = false
		label := strings.Join(strings.Fields(d.label.String()), " ")
		switch {
		case d.href == "":
			d.para.WriteString(label)
		case label == "":
			d.para.WriteString(d.href)
		default:
			d.para.WriteString("[" + label + "](" + d.href + ")")
		}
	case "p":
		text := strings.TrimSpace(d.para.String())
		d.para.Reset()
		if text == "" {
			return
		}
		if d.cellOpen > 0 {
			d.cell = append(d.cell, text)
		} else {
			d.paras = append(d.paras, text)
		}
	case "tc":
		d.row = append(d.row, strings.Join(d.cell, " "))
		d.cell = nil
		if d.cellOpen > 0 {
			d.cellOpen--
		}
	case "tr":
		if strings.TrimSpace(strings.Join(d.row, "")) != "" {
			d.paras = append(d.paras, strings.Join(d.row, " | "))
		}
		d.row = nil
	}
}

func docxBodyText(data []byte, targets map[string]string) (string, error) {
	d := &docxWriter{targets: targets}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", docxBodyPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			d.start(t)
		case xml.EndElement:
			d.end(t)
		case xml.CharData:
			if d.inText {
				d.write(string(t))
			}
		}
	}
	return strings.Join(d.paras, "\n\n"), nil
}
