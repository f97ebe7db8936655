package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Request describes one outbound backend call. It is built per call and used once.
type Request struct {
	// Name labels the call in logs, metrics and traces.
	Name         string
	Method       string
	Path         string
	Query        url.Values
	Body         any
	Multipart    *Multipart
	ExtraHeaders http.Header
}

// Multipart is a multipart/form-data body.
type Multipart struct {
	Fields map[string]string
	Files  []FilePart
}

// FilePart is one file inside a multipart body.
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Content     []byte
}

// Response is a raw backend response with the body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// encodeBody returns the request body and the content type it requires. An empty
// content type means the JSON default applies.
func (r Request) encodeBody() (io.Reader, string, error) {
	if r.Multipart != nil {
		return r.Multipart.encode()
	}
	if r.Body == nil {
		return nil, "", nil
	}
	switch b := r.Body.(type) {
	case json.RawMessage:
		return bytes.NewReader(b), "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	}
	raw, err := json.Marshal(r.Body)
	if err != nil {
		return nil, "", fmt.Errorf("gateway: encode body: %w", err)
	}
	return bytes.NewReader(raw), "", nil
}

func (m *Multipart) encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range m.Fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("gateway: multipart field %s: %w", name, err)
		}
	}
	for _, f := range m.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, quoteEscaper.Replace(f.Field), quoteEscaper.Replace(f.Filename)))
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("gateway: multipart file %s: %w", f.Field, err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, "", fmt.Errorf("gateway: multipart file %s: %w", f.Field, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("gateway: multipart close: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
