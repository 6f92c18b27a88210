package mailbox

import (
	"testing"
	"time"

	"github.com/poiesic/triage/core"
	"github.com/stretchr/testify/assert"
)

func TestReplyTo(t *testing.T) {
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	msg := &core.Message{ID: "m1", ThreadID: "t1", Sender: "ann@example.com", Subject: "Quarterly numbers"}

	r := ReplyTo(msg, "Attached.", at)
	assert.Equal(t, core.MessageID("m1"), r.InReplyTo)
	assert.Equal(t, "t1", r.ThreadID)
	assert.Equal(t, "ann@example.com", r.To)
	assert.Equal(t, "Re: Quarterly numbers", r.Subject)
	assert.Equal(t, "Attached.", r.Body)
	assert.Equal(t, at, r.CreatedAt)
}

func TestReplySubject(t *testing.T) {
	assert.Equal(t, "Re: Hello", replySubject("Hello"))
	assert.Equal(t, "Re: Hello", replySubject("Re: Hello"))
	assert.Equal(t, "RE: Hello", replySubject("RE: Hello"))
	assert.Equal(t, "Re: ", replySubject(""))
}
