package http

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kitalumni/alumnichat/internal/core"
	"github.com/kitalumni/alumnichat/internal/proto"
)

func TestInboundToCommand(t *testing.T) {
	tests := []struct {
		name     string
		inbound  proto.Inbound
		want     *core.Command
		wantCode string
	}{
		{
			name:    "user-online string",
			inbound: proto.Inbound{Type: proto.InboundTypeUserOnline, Data: json.RawMessage(`"u1"`)},
			want:    &core.Command{Kind: core.CommandBindIdentity, UserID: "u1"},
		},
		{
			name:    "user-online object",
			inbound: proto.Inbound{Type: proto.InboundTypeUserOnline, Data: json.RawMessage(`{"userId":"u1"}`)},
			want:    &core.Command{Kind: core.CommandBindIdentity, UserID: "u1"},
		},
		{
			name:    "user-online null is forwarded empty",
			inbound: proto.Inbound{Type: proto.InboundTypeUserOnline, Data: json.RawMessage(`null`)},
			want:    &core.Command{Kind: core.CommandBindIdentity},
		},
		{
			name:     "user-online number",
			inbound:  proto.Inbound{Type: proto.InboundTypeUserOnline, Data: json.RawMessage(`42`)},
			wantCode: errCodeInvalidMessage,
		},
		{
			name: "send-message",
			inbound: proto.Inbound{
				Type: proto.InboundTypeSendMessage,
				Data: json.RawMessage(`{"fromUserId":"u1","toUserId":"u2","message":"hi"}`),
			},
			want: &core.Command{Kind: core.CommandSendMessage, From: "u1", To: "u2", Text: "hi"},
		},
		{
			name:     "send-message without receiver",
			inbound:  proto.Inbound{Type: proto.InboundTypeSendMessage, Data: json.RawMessage(`{"fromUserId":"u1","message":"hi"}`)},
			wantCode: core.ErrCodeBadRequest,
		},
		{
			name:     "send-message bad payload",
			inbound:  proto.Inbound{Type: proto.InboundTypeSendMessage, Data: json.RawMessage(`"hi"`)},
			wantCode: errCodeInvalidMessage,
		},
		{
			name:     "unknown type",
			inbound:  proto.Inbound{Type: "typing"},
			wantCode: errCodeInvalidMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, protoErr := inboundToCommand(tt.inbound)
			if tt.wantCode != "" {
				require.Nil(t, cmd)
				require.NotNil(t, protoErr)
				require.Equal(t, tt.wantCode, protoErr.Code)
				return
			}
			require.Nil(t, protoErr)
			require.Equal(t, tt.want, cmd)
		})
	}
}

func TestOutboundChatShape(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := outboundFromEvent(&core.Event{
		Kind:    core.EventReceiveMessage,
		Message: core.Message{ID: "m1", From: "u1", To: "u2", Text: "hi", CreatedAt: created},
	})

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"type": "event",
		"event": "receive-message",
		"data": {"chat": {"_id": "m1", "sender": "u1", "receiver": "u2", "message": "hi", "createdAt": "2024-05-01T12:00:00Z"}}
	}`, string(raw))
}

func TestOutboundStatusShape(t *testing.T) {
	out := outboundFromEvent(&core.Event{Kind: core.EventStatusUpdate, Status: core.StatusUpdate{UserID: "u1"}})

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"event","event":"userStatusUpdate","data":{"userId":"u1","isOnline":false}}`, string(raw))
}
