// Command chatclient is a terminal client for the chat gateway. Lines typed on stdin
// go to the peer given with -to; "@peer text" addresses someone else for one line.
// With -once it sends a single message, waits for the acknowledgement and exits.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/fatih/color"

	"github.com/kitalumni/alumnichat/internal/proto"
)

type inboundFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("chatclient: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:5001/ws", "WebSocket address")
	user := flag.String("user", "", "user id announced with user-online")
	to := flag.String("to", "", "default receiver")
	once := flag.String("once", "", "send this text to -to, wait for message-sent and exit")
	timeout := flag.Duration("timeout", 5*time.Second, "timeout for -once")
	flag.Parse()

	if *user == "" {
		return errors.New("-user is required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, conn, proto.InboundTypeUserOnline, *user); err != nil {
		return err
	}

	if *once != "" {
		if *to == "" {
			return errors.New("-once needs -to")
		}
		onceCtx, cancelOnce := context.WithTimeout(ctx, *timeout)
		defer cancelOnce()
		return sendOnce(onceCtx, conn, *user, *to, *once)
	}

	fmt.Printf("Connected to %s as %s\n", color.CyanString(*addr), color.GreenString(*user))
	fmt.Println("Type a message and press Enter. Prefix with @peer to pick a receiver. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn, *user)
	}()

	writeLoop(ctx, conn, *user, *to)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func send(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

func sendOnce(ctx context.Context, conn *websocket.Conn, user, to, text string) error {
	if err := send(ctx, conn, proto.InboundTypeSendMessage, proto.SendMessageData{
		FromUserID: user,
		ToUserID:   to,
		Message:    text,
	}); err != nil {
		return err
	}

	for {
		var frame inboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return fmt.Errorf("waiting for message-sent: %w", err)
		}
		if frame.Type == proto.OutboundTypeError && frame.Error != nil {
			return fmt.Errorf("server error %s: %s", frame.Error.Code, frame.Error.Msg)
		}
		if frame.Event != proto.EventMessageSent {
			continue
		}
		var evt proto.ChatEvent
		if err := json.Unmarshal(frame.Data, &evt); err != nil {
			return fmt.Errorf("decode message-sent: %w", err)
		}
		fmt.Printf("sent %s to %s at %s\n", evt.Chat.ID, evt.Chat.Receiver, evt.Chat.CreatedAt.Format(time.RFC3339))
		return nil
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, self string) {
	for {
		var frame inboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			case websocket.StatusPolicyViolation:
				color.Yellow("connection closed: %s is connected elsewhere", self)
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if frame.Type == proto.OutboundTypeError && frame.Error != nil {
			color.Red("error %s: %s", frame.Error.Code, frame.Error.Msg)
			continue
		}

		switch frame.Event {
		case proto.EventUserStatusUpdate:
			var st proto.UserStatusUpdate
			if err := json.Unmarshal(frame.Data, &st); err != nil {
				log.Printf("unmarshal %s: %v", frame.Event, err)
				continue
			}
			if st.IsOnline {
				fmt.Printf("%s %s\n", color.GreenString("●"), st.UserID)
			} else {
				fmt.Printf("%s %s\n", color.HiBlackString("○"), st.UserID)
			}
		case proto.EventReceiveMessage, proto.EventMessageSent:
			var evt proto.ChatEvent
			if err := json.Unmarshal(frame.Data, &evt); err != nil {
				log.Printf("unmarshal %s: %v", frame.Event, err)
				continue
			}
			ts := evt.Chat.CreatedAt.Local().Format("15:04:05")
			if frame.Event == proto.EventMessageSent {
				fmt.Printf("%s %s %s\n", color.HiBlackString(ts), color.BlueString("→ "+evt.Chat.Receiver), evt.Chat.Message)
			} else {
				fmt.Printf("%s %s %s\n", color.HiBlackString(ts), color.MagentaString(evt.Chat.Sender+":"), evt.Chat.Message)
			}
		case proto.EventSessionReplaced:
			color.Yellow("another connection took over %s", self)
		default:
			fmt.Printf("event=%s data=%s\n", frame.Event, string(frame.Data))
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, user, defaultTo string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			to, text := parseLine(line, defaultTo)
			if text == "" {
				continue
			}
			if to == "" {
				color.Yellow("no receiver: start the line with @peer or pass -to")
				continue
			}

			if err := send(ctx, conn, proto.InboundTypeSendMessage, proto.SendMessageData{
				FromUserID: user,
				ToUserID:   to,
				Message:    text,
			}); err != nil {
				log.Print(err)
				return
			}
		}
	}
}

// parseLine splits "@peer text" into receiver and body; other lines go to defaultTo.
func parseLine(line, defaultTo string) (string, string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "@") {
		return defaultTo, line
	}
	peer, text, _ := strings.Cut(line[1:], " ")
	return peer, strings.TrimSpace(text)
}
