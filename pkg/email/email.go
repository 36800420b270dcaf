package email

import (
	"fmt"
	"net/smtp"
	"strings"
)

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Client sends plain-text mail through one SMTP relay.
type Client struct {
	Server   string
	Port     int
	Username string
	Password string
	FromName string

	send SendFunc
}

// NewClient creates a Client that delivers with smtp.SendMail.
func NewClient(server string, port int, username, password, fromName string) *Client {
	return &Client{
		Server:   server,
		Port:     port,
		Username: username,
		Password: password,
		FromName: fromName,
		send:     smtp.SendMail,
	}
}

// WithSendFunc replaces the transport, mainly for tests.
func (c *Client) WithSendFunc(fn SendFunc) *Client {
	c.send = fn
	return c
}

// Configured reports whether the relay settings are complete.
func (c *Client) Configured() bool {
	return c.Server != "" && c.Port != 0 && c.Username != ""
}

// Send delivers one message to every address in to.
func (c *Client) Send(to []string, subject, body string) error {
	if !c.Configured() {
		return fmt.Errorf("missing email configuration: server, port or username is empty")
	}
	for _, addr := range to {
		if !strings.Contains(addr, "@") {
			return fmt.Errorf("invalid email address: %s", addr)
		}
	}

	from := c.Username
	if c.FromName != "" {
		from = fmt.Sprintf("%s <%s>", c.FromName, c.Username)
	}
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		from, strings.Join(to, ", "), subject, body))

	var auth smtp.Auth
	if c.Password != "" {
		auth = smtp.PlainAuth("", c.Username, c.Password, c.Server)
	}
	addr := fmt.Sprintf("%s:%d", c.Server, c.Port)
	if err := c.send(addr, auth, c.Username, to, msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", strings.Join(to, ", "), err)
	}
	return nil
}
