package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "connection", err: Connection("login", context.DeadlineExceeded), want: ConnectionMessage},
		{name: "rejected verbatim", err: Rejected("join", 400, "Face not recognized"), want: "Face not recognized"},
		{name: "precondition", err: Precondition("login", "email is required"), want: "email is required"},
		{name: "wrapped", err: fmt.Errorf("submit: %w", Rejected("join", 400, "Bu yoklamaya zaten katıldınız")), want: "Bu yoklamaya zaten katıldınız"},
		{name: "plain error", err: errors.New("boom"), want: "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}

func TestKinds(t *testing.T) {
	conn := Connection("whoami", errors.New("dial tcp: refused"))
	assert.True(t, conn.Retryable())
	assert.True(t, IsConnection(fmt.Errorf("restore: %w", conn)))
	assert.ErrorIs(t, Connection("x", context.Canceled), context.Canceled)

	rej := Rejected("login", 401, "Email veya şifre hatalı")
	assert.False(t, rej.Retryable())
	assert.True(t, IsRejected(rej))
	assert.False(t, IsRejected(conn))
	assert.True(t, IsPrecondition(Precondition("capture", "camera not ready")))
	assert.Equal(t, Kind(0), KindOf(errors.New("other")))
}
