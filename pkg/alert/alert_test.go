package alert

import (
	"errors"
	"net/smtp"
	"testing"

	"github.com/soundprediction/robomem/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsImplementation(t *testing.T) {
	assert.IsType(t, &NoOpAlerter{}, New(config.AlertConfig{}))
	assert.IsType(t, &EmailAlerter{}, New(config.AlertConfig{Enabled: true, SMTPHost: "mail"}))
}

func TestEmailAlerterFormatsMessage(t *testing.T) {
	a := NewEmailAlerter(config.AlertConfig{
		Enabled:  true,
		SMTPHost: "mail.example.com",
		SMTPPort: 2525,
		From:     "robot@example.com",
		To:       []string{"ops@example.com", "dev@example.com"},
	})

	var gotAddr string
	var gotMsg []byte
	a.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotMsg = msg
		assert.Equal(t, "robot@example.com", from)
		assert.Len(t, to, 2)
		return nil
	}

	require.NoError(t, a.Alert("store breaker open", "too many failures"))
	assert.Equal(t, "mail.example.com:2525", gotAddr)
	assert.Contains(t, string(gotMsg), "Subject: [robomem] store breaker open")
	assert.Contains(t, string(gotMsg), "To: ops@example.com,dev@example.com")
}

func TestEmailAlerterWrapsSendError(t *testing.T) {
	a := NewEmailAlerter(config.AlertConfig{Enabled: true, SMTPHost: "mail"})
	boom := errors.New("connection refused")
	a.send = func(string, smtp.Auth, string, []string, []byte) error { return boom }

	assert.ErrorIs(t, a.Alert("s", "m"), boom)
}

func TestDisabledEmailAlerterIsSilent(t *testing.T) {
	a := NewEmailAlerter(config.AlertConfig{})
	a.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("must not send")
		return nil
	}
	assert.NoError(t, a.Alert("s", "m"))
}
