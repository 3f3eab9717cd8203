package chat

import (
	"context"
	"errors"
	"net/http"

	"github.com/bufbuild/connect-go"

	"github.com/bluehawksai/bluehawks-cli/internal/observability"
	"github.com/bluehawksai/bluehawks-cli/internal/rpc"
	"github.com/bluehawksai/bluehawks-cli/internal/rpc/connectjson"
)

// ConnectChatProcedure is the Connect route for the chat stream.
const ConnectChatProcedure = "/connect.chat.v1.ChatService/Chat"

// NewConnectHandler builds a Connect bidi stream handler for Chat.
func NewConnectHandler(runner Runner, metrics *observability.Metrics) (string, http.Handler) {
	h := &connectChatHandler{runner: runner, metrics: metrics}
	return ConnectChatProcedure, connect.NewBidiStreamHandler(ConnectChatProcedure, h.handle, connect.WithCodec(connectjson.Codec{}))
}

type connectChatHandler struct {
	runner  Runner
	metrics *observability.Metrics
}

func (h *connectChatHandler) handle(ctx context.Context, stream *connect.BidiStream[rpc.ChatStreamRequest, rpc.ChatEvent]) error {
	if h.metrics != nil {
		h.metrics.IncActiveSessions("connect")
		defer h.metrics.DecActiveSessions("connect")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	first, err := stream.Receive()
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordTransportError("connect", "receive_first")
		}
		return err
	}
	if first == nil || first.Chat == nil {
		if h.metrics != nil {
			h.metrics.RecordTransportError("connect", "missing_chat")
		}
		return connect.NewError(connect.CodeInvalidArgument, errors.New("first message must include chat payload"))
	}
	req := *first.Chat

	// Listen for cancellation messages from the client.
	go func() {
		for {
			msg, recvErr := stream.Receive()
			if recvErr != nil {
				if h.metrics != nil && !errors.Is(recvErr, context.Canceled) {
					h.metrics.RecordTransportError("connect", "receive_stream")
				}
				cancel()
				return
			}
			if msg != nil && msg.Cancel {
				cancel()
				return
			}
		}
	}()

	events, runErr := h.runner.Chat(ctx, req)
	if runErr != nil {
		if h.metrics != nil {
			h.metrics.RecordTransportError("connect", "runner_error")
		}
		return connect.NewError(connect.CodeInternal, runErr)
	}

	for ev := range events {
		ev := ev
		if err := stream.Send(&ev); err != nil {
			if h.metrics != nil {
				h.metrics.RecordTransportError("connect", "send")
			}
			return err
		}
	}
	return nil
}
