package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/amirhossein5/facecheck/internal/config"
	"github.com/amirhossein5/facecheck/internal/models"
)

const (
	ReportSubject  = "Daily Attendance Report"
	ReportFileName = "attendance.csv"

	// DefaultSendTimeout bounds one delivery when ctx has no deadline.
	DefaultSendTimeout = 30 * time.Second
)

type sendFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier mails the report as a CSV attachment to the admin address.
type SMTPNotifier struct {
	addr string
	auth smtp.Auth
	from string
	to   string
	send sendFunc

	Timeout time.Duration
}

func NewSMTPNotifier(cfg config.SMTPConfig, adminEmail string) (*SMTPNotifier, error) {
	if adminEmail == "" {
		return nil, errors.New("smtp notifier: ADMIN_EMAIL is required")
	}
	if cfg.Username == "" {
		return nil, errors.New("smtp notifier: SMTP_USERNAME is required")
	}
	return &SMTPNotifier{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		auth: smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host),
		from: cfg.Username,
		to:   adminEmail,
		send:    sendMail,
		Timeout: DefaultSendTimeout,
	}, nil
}

func (n *SMTPNotifier) Notify(ctx context.Context, records []models.AttendanceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := n.message(records)
	if err != nil {
		return fmt.Errorf("build report email: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok && n.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}
	if err := n.send(ctx, n.addr, n.auth, n.from, []string{n.to}, msg); err != nil {
		return fmt.Errorf("send report email: %w", err)
	}
	return nil
}

func (n *SMTPNotifier) message(records []models.AttendanceRecord) ([]byte, error) {
	var attachment bytes.Buffer
	if err := WriteCSV(&attachment, records); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	text, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(text, "Attached is the attendance report (%d records).\r\n", len(records))

	file, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/csv; charset=utf-8"},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", ReportFileName)},
	})
	if err != nil {
		return nil, err
	}
	if err := writeBase64Lines(file, attachment.Bytes()); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", n.from)
	fmt.Fprintf(&msg, "To: %s\r\n", n.to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", ReportSubject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=%s\r\n", mw.Boundary())
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

// writeBase64Lines keeps encoded lines within the RFC 2045 limit.
func writeBase64Lines(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := min(76, len(encoded))
		if _, err := fmt.Fprintf(w, "%s\r\n", encoded[:n]); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}

// sendMail is smtp.SendMail with the connection bound to ctx: the dial honors
// it, the deadline is applied to every read and write, and cancellation closes
// the connection.
func sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
