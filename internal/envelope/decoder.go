package envelope

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"

	id "mailroom/pkg/domain"
	dErrors "mailroom/pkg/domain-errors"
	pkgemail "mailroom/pkg/email"
)

// Metadata is the delivery context that arrives alongside the raw bytes.
type Metadata struct {
	// DeliveryID uniquely identifies this delivery attempt.
	DeliveryID string
	// Recipient is the mailbox the message was delivered to, as reported
	// by the transport. Preferred over the To header, which lies for BCC.
	Recipient string
	// RawKey is the object-store key of the raw message.
	RawKey string
}

// Decode turns raw RFC 5322 bytes into a canonical Envelope. It is a pure
// transform: no I/O beyond reading the provided bytes. A message that cannot
// be parsed at all yields a malformed_input error; a missing or empty body
// never does.
func Decode(raw []byte, meta Metadata) (*Envelope, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMalformedInput, "unparseable message")
	}

	recipient := meta.Recipient
	if recipient == "" {
		recipient = msg.Header.Get("To")
	}
	recipient = pkgemail.NormalizeAddress(recipient)

	env := &Envelope{
		MessageID:     messageID(msg.Header, meta.DeliveryID),
		Sender:        pkgemail.NormalizeAddress(msg.Header.Get("From")),
		SenderDisplay: decodeHeader(msg.Header.Get("From")),
		Recipient:     recipient,
		Subject:       decodeHeader(msg.Header.Get("Subject")),
		ProjectTag:    pkgemail.ProjectTag(recipient),
		InReplyTo:     strings.TrimSpace(msg.Header.Get("Message-ID")),
		AutoReply:     isAutoReply(msg.Header),
		RawKey:        meta.RawKey,
	}

	body, attachments, err := walkBody(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMalformedInput, "unreadable message body")
	}
	env.Body = strings.TrimSpace(body)
	env.Attachments = attachments

	return env, nil
}

// messageID prefers the Message-ID header, stripped of angle brackets, and
// falls back to the delivery id so every envelope has an idempotency key.
func messageID(h mail.Header, deliveryID string) id.MessageID {
	mid := strings.TrimSpace(h.Get("Message-ID"))
	mid = strings.TrimPrefix(mid, "<")
	mid = strings.TrimSuffix(mid, ">")
	if mid == "" {
		mid = deliveryID
	}
	return id.MessageID(mid)
}

// wordDecoder tolerates unknown charsets: better a slightly mangled subject
// than a rejected message.
var wordDecoder = mime.WordDecoder{
	CharsetReader: func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	},
}

func decodeHeader(v string) string {
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

// walkBody recursively descends MIME parts collecting the plain-text body
// and attachment descriptors. HTML is kept only as a fallback when no
// text/plain part exists.
func walkBody(contentType, transferEncoding string, r io.Reader) (string, []Attachment, error) {
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Unknown Content-Type is not fatal; treat the payload as text.
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return "", nil, dErrors.New(dErrors.CodeMalformedInput, "multipart message without boundary")
		}
		return walkMultipart(multipart.NewReader(r, boundary))
	}

	text, err := readPart(r, transferEncoding)
	if err != nil {
		return "", nil, err
	}
	if mediaType == "text/html" {
		return htmlToText(text), nil, nil
	}
	return text, nil, nil
}

func walkMultipart(mr *multipart.Reader) (string, []Attachment, error) {
	var plain, html strings.Builder
	var attachments []Attachment

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, err
		}

		disposition, _, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		if disposition == "attachment" || part.FileName() != "" {
			att, err := describeAttachment(part)
			if err == nil {
				attachments = append(attachments, att)
			}
			continue
		}

		mediaType, params, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		switch {
		case strings.HasPrefix(mediaType, "multipart/"):
			nested, nestedAtts, err := walkMultipart(multipart.NewReader(part, params["boundary"]))
			if err != nil {
				return "", nil, err
			}
			plain.WriteString(nested)
			attachments = append(attachments, nestedAtts...)
		case mediaType == "text/plain" || mediaType == "":
			text, err := readPart(part, part.Header.Get("Content-Transfer-Encoding"))
			if err == nil {
				plain.WriteString(text)
			}
		case mediaType == "text/html":
			text, err := readPart(part, part.Header.Get("Content-Transfer-Encoding"))
			if err == nil {
				html.WriteString(text)
			}
		}
	}

	if plain.Len() > 0 {
		return plain.String(), attachments, nil
	}
	return htmlToText(html.String()), attachments, nil
}

// describeAttachment buffers the still-encoded part bytes and exposes a lazy
// decoding reader, so attachment payloads are only decoded when the pipeline
// persists them.
func describeAttachment(part *multipart.Part) (Attachment, error) {
	encoded, err := io.ReadAll(part)
	if err != nil {
		return Attachment{}, err
	}

	encoding := strings.ToLower(strings.TrimSpace(part.Header.Get("Content-Transfer-Encoding")))
	size := int64(len(encoded))
	if encoding == "base64" {
		size = int64(base64.StdEncoding.DecodedLen(len(stripWhitespace(encoded))))
	}

	contentType := part.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}

	return Attachment{
		Filename:    part.FileName(),
		ContentType: contentType,
		Size:        size,
		Content:     decodeReader(bytes.NewReader(encoded), encoding),
	}, nil
}

func readPart(r io.Reader, transferEncoding string) (string, error) {
	decoded, err := io.ReadAll(decodeReader(r, strings.ToLower(strings.TrimSpace(transferEncoding))))
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func decodeReader(r io.Reader, encoding string) io.Reader {
	switch encoding {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, whitespaceStripper{r})
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

type whitespaceStripper struct{ r io.Reader }

func (w whitespaceStripper) Read(p []byte) (int, error) {
	n, err := w.r.Read(p)
	kept := 0
	for _, b := range p[:n] {
		if b == '\r' || b == '\n' || b == ' ' || b == '\t' {
			continue
		}
		p[kept] = b
		kept++
	}
	return kept, err
}

func stripWhitespace(b []byte) []byte {
	out := b[:0:len(b)]
	for _, c := range b {
		if c == '\r' || c == '\n' || c == ' ' || c == '\t' {
			continue
		}
		out = append(out, c)
	}
	return out
}

var (
	styleRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	scriptRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	tagRe    = regexp.MustCompile(`<[^>]+>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// htmlToText strips markup for the no-plain-text fallback. It is
// intentionally crude: the extraction model tolerates messy text, and the
// alternative is pulling in a full HTML parser for a fallback path.
func htmlToText(html string) string {
	text := styleRe.ReplaceAllString(html, "")
	text = scriptRe.ReplaceAllString(text, "")
	text = tagRe.ReplaceAllString(text, " ")
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// autoReplyHeaders are stamped by mailers on generated messages. A bare
// "Auto-Submitted: no" does not count.
var autoReplyHeaders = []string{
	"X-Autorespond",
	"X-Autoreply",
	"X-Auto-Response-Suppress",
}

var autoReplySubjects = []string{
	"out of office",
	"automatic reply",
	"auto reply",
	"away from",
	"vacation",
}

func isAutoReply(h mail.Header) bool {
	if v := strings.ToLower(strings.TrimSpace(h.Get("Auto-Submitted"))); v != "" && v != "no" {
		return true
	}
	for _, header := range autoReplyHeaders {
		if h.Get(header) != "" {
			return true
		}
	}
	subject := strings.ToLower(h.Get("Subject"))
	for _, pattern := range autoReplySubjects {
		if strings.Contains(subject, pattern) {
			return true
		}
	}
	return false
}
