package notify

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/smtp"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Attachment is a file to include with a message, already read into memory.
type Attachment struct {
	FileName string
	Content  []byte
}

// Message is one outbound notification.
type Message struct {
	Recipients  []string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
	// RowCount is carried through to the audit log for report mails.
	RowCount int
}

// Transport delivers a fully composed message. Implementations must be safe
// for sequential reuse; the dispatcher never calls Send concurrently.
type Transport interface {
	Send(msg Message) error
}

// SMTPConfig configures the default SMTP transport.
type SMTPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	From     string `yaml:"from" mapstructure:"from"`
}

// SMTPTransport sends multipart MIME mail through a single relay.
//
// The standard library client is used directly: the retrieval corpus carries
// no mail library, and the dispatcher's needs stop at multipart encoding
// plus plain AUTH.
type SMTPTransport struct {
	cfg SMTPConfig

	// sendMail is swappable in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	return &SMTPTransport{cfg: cfg, sendMail: smtp.SendMail}
}

func (t *SMTPTransport) Send(msg Message) error {
	if len(msg.Recipients) == 0 {
		return eris.New("notify: message has no recipients")
	}
	body, err := composeMIME(t.cfg.From, msg)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port)
	var auth smtp.Auth
	if t.cfg.Username != "" {
		auth = smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
	}
	if err := t.sendMail(addr, auth, t.cfg.From, msg.Recipients, body); err != nil {
		return eris.Wrap(err, "notify: smtp send")
	}
	return nil
}

func composeMIME(from string, msg Message) ([]byte, error) {
	boundary := "b-" + uuid.New().String()
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	writeBase64(&b, []byte(msg.HTMLBody))

	for _, att := range msg.Attachments {
		name := filepath.Base(att.FileName)
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		fmt.Fprintf(&b, "Content-Type: application/octet-stream; name=%q\r\n", name)
		fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n", name)
		b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		writeBase64(&b, att.Content)
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return []byte(b.String()), nil
}

// writeBase64 emits base64 wrapped at 76 columns per RFC 2045.
func writeBase64(b *strings.Builder, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		b.WriteString(encoded[:76])
		b.WriteString("\r\n")
		encoded = encoded[76:]
	}
	b.WriteString(encoded)
	b.WriteString("\r\n")
}
