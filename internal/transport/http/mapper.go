package http

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"github.com/kitalumni/alumnichat/internal/core"
	"github.com/kitalumni/alumnichat/internal/proto"
)

const errCodeInvalidMessage = "invalid_message"

var validate = validator.New(validator.WithRequiredStructEnabled())

// inboundToCommand maps a client frame to a hub command. A non-nil *proto.Error
// means the frame was rejected and nothing should reach the hub.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeUserOnline:
		var data proto.UserOnlineData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, &proto.Error{Code: errCodeInvalidMessage, Msg: err.Error()}
		}
		// An empty id still goes to the hub, which ignores it.
		return &core.Command{Kind: core.CommandBindIdentity, UserID: data.UserID}, nil
	case proto.InboundTypeSendMessage:
		var data proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, &proto.Error{Code: errCodeInvalidMessage, Msg: err.Error()}
		}
		if err := validate.Struct(data); err != nil {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "toUserId is required"}
		}
		return &core.Command{
			Kind: core.CommandSendMessage,
			From: data.FromUserID,
			To:   data.ToUserID,
			Text: data.Message,
		}, nil
	default:
		return nil, &proto.Error{Code: errCodeInvalidMessage, Msg: "unknown message type"}
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventStatusUpdate:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserStatusUpdate,
			Data: proto.UserStatusUpdate{
				UserID:   event.Status.UserID,
				IsOnline: event.Status.Online,
			},
		}
	case core.EventReceiveMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventReceiveMessage,
			Data:  proto.ChatEvent{Chat: chatFromMessage(event.Message)},
		}
	case core.EventMessageSent:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessageSent,
			Data:  proto.ChatEvent{Chat: chatFromMessage(event.Message)},
		}
	case core.EventSessionReplaced:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventSessionReplaced,
			Data:  proto.SessionReplaced{UserID: event.User},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func chatFromMessage(m core.Message) proto.Chat {
	return proto.Chat{
		ID:        m.ID,
		Sender:    m.From,
		Receiver:  m.To,
		Message:   m.Text,
		CreatedAt: m.CreatedAt,
	}
}
