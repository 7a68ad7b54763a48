package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

// docxText reads word/document.xml and keeps paragraph breaks, which the
// heuristic parser relies on.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			body = f
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("%s missing", docxBody)
	}
	rc, err := body.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	raw, err := io.ReadAll(io.LimitReader(rc, 32<<20))
	if err != nil {
		return "", err
	}
	return paragraphsFromXML(raw), nil
}

func paragraphsFromXML(raw []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var out, para strings.Builder
	flush := func() {
		if s := strings.TrimSpace(para.String()); s != "" {
			out.WriteString(s)
			out.WriteString("\n")
		}
		para.Reset()
	}
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				var v string
				_ = dec.DecodeElement(&v, &el)
				para.WriteString(v)
			case "tab":
				para.WriteString(" ")
			case "br":
				flush()
			}
		case xml.EndElement:
			if el.Name.Local == "p" {
				flush()
			}
		}
	}
	flush()
	return out.String()
}
