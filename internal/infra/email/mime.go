package email

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"

	"maintenance_scheduler/internal/domain/mail"
)

type header struct{ key, value string }

// BuildMIME encodes msg as multipart/alternative, text part first so the HTML part is preferred.
func BuildMIME(msg *mail.Message) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	date := msg.Date
	if date.IsZero() {
		date = time.Now()
	}

	headers := []header{
		{"From", msg.From},
		{"To", strings.Join(msg.To, ", ")},
	}
	if len(msg.Cc) > 0 {
		headers = append(headers, header{"Cc", strings.Join(msg.Cc, ", ")})
	}
	headers = append(headers,
		header{"Subject", mime.QEncoding.Encode("utf-8", msg.Subject)},
		header{"Date", date.Format(time.RFC1123Z)},
		header{"MIME-Version", "1.0"},
		header{"Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", mw.Boundary())},
	)

	var out bytes.Buffer
	for _, h := range headers {
		fmt.Fprintf(&out, "%s: %s\r\n", h.key, h.value)
	}
	out.WriteString("\r\n")

	if err := writePart(mw, "text/plain", msg.TextBody); err != nil {
		return nil, err
	}
	if err := writePart(mw, "text/html", msg.HTMLBody); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	out.Write(buf.Bytes())
	return out.Bytes(), nil
}

func writePart(mw *multipart.Writer, contentType, body string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType+"; charset=\"utf-8\"")
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	pw, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	qp := quotedprintable.NewWriter(pw)
	if _, err := qp.Write([]byte(body)); err != nil {
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return qp.Close()
}
