package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/soundboard/internal/orchestrator"
	"github.com/ent0n29/soundboard/internal/protocol"
	"github.com/ent0n29/soundboard/internal/reliability"
	"github.com/ent0n29/soundboard/internal/service"
	"github.com/ent0n29/soundboard/internal/speech"
)

const (
	wsWriteWait    = 10 * time.Second
	wsReadIdle     = 120 * time.Second
	wsPingInterval = 30 * time.Second
	wsOutboundSize = 256
)

// wsConn serializes writes for one websocket. Every run on the connection
// sends through it.
type wsConn struct {
	ctx      context.Context
	outbound chan any
}

func (c *wsConn) send(msg any) bool {
	select {
	case <-c.ctx.Done():
		return false
	case c.outbound <- msg:
		return true
	}
}

func (s *Server) handleSpeakWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	key := clientKey(r)
	logger := s.logger.With("client", key)
	logger.Debug("ws connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	wc := &wsConn{ctx: ctx, outbound: make(chan any, wsOutboundSize)}
	metrics := s.svc.Metrics()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ping := time.NewTicker(wsPingInterval)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					cancel()
					return
				}
			case msg := <-wc.outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(msg); err != nil {
					metrics.WSWriteErrors.Inc()
					cancel()
					return
				}
				if t, ok := protocol.TypeOf(msg); ok {
					metrics.ObserveWSMessage("outbound", string(t))
				}
			}
		}
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadIdle))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadIdle))
		return nil
	})

	var runs sync.WaitGroup
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadIdle))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			wc.send(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   string(speech.CodeInvalidInput),
				Detail: err.Error(),
			})
			continue
		}
		if t, ok := protocol.TypeOf(parsed); ok {
			metrics.ObserveWSMessage("inbound", string(t))
		}

		switch msg := parsed.(type) {
		case protocol.SpeakMessage:
			runs.Add(1)
			go func() {
				defer runs.Done()
				s.wsSpeak(wc, key, msg)
			}()
		case protocol.DialogueMessage:
			runs.Add(1)
			go func() {
				defer runs.Done()
				s.wsDialogue(wc, key, msg)
			}()
		case protocol.InterruptMessage:
			ok, err := s.svc.Interrupt(ctx, msg.JobID)
			if err != nil {
				wc.send(errorEvent(msg.RequestID, msg.JobID, err))
				continue
			}
			wc.send(protocol.InterruptResult{
				Type:        protocol.TypeInterruptResult,
				RequestID:   msg.RequestID,
				JobID:       msg.JobID,
				Interrupted: ok,
			})
		}
	}

	cancel()
	runs.Wait()
	<-writerDone
	logger.Debug("ws disconnected")
}

func (s *Server) wsSpeak(wc *wsConn, key string, msg protocol.SpeakMessage) {
	onStart, onChunk := progressHooks(wc, msg.RequestID)
	res, err := s.svc.Speak(wc.ctx, service.SpeakRequest{
		Text:      msg.Text,
		Mode:      service.Mode(msg.Mode),
		Voice:     msg.Voice,
		Speed:     msg.Speed,
		Delivery:  msg.Delivery,
		Concat:    msg.Concat,
		ClientKey: key,
		OnStart:   onStart,
		OnChunk:   onChunk,
	})
	if err != nil {
		wc.send(errorEvent(msg.RequestID, res.JobID, err))
		return
	}
	wc.send(protocol.SpeechResult{
		Type:      protocol.TypeSpeechResult,
		RequestID: msg.RequestID,
		JobID:     res.JobID,
		Result:    res,
	})
}

func (s *Server) wsDialogue(wc *wsConn, key string, msg protocol.DialogueMessage) {
	onStart, onChunk := progressHooks(wc, msg.RequestID)
	res, err := s.svc.SpeakDialogue(wc.ctx, service.DialogueRequest{
		Script:    msg.Script,
		Cast:      msg.Cast,
		Speed:     msg.Speed,
		Delivery:  msg.Delivery,
		Concat:    msg.Concat,
		ClientKey: key,
		OnStart:   onStart,
		OnChunk:   onChunk,
	})
	if err != nil {
		wc.send(errorEvent(msg.RequestID, res.JobID, err))
		return
	}
	wc.send(protocol.SpeechResult{
		Type:      protocol.TypeSpeechResult,
		RequestID: msg.RequestID,
		JobID:     res.JobID,
		Result:    res,
	})
}

func progressHooks(wc *wsConn, requestID string) (func(string), func(orchestrator.ChunkEvent)) {
	onStart := func(jobID string) {
		wc.send(protocol.JobStarted{Type: protocol.TypeJobStarted, RequestID: requestID, JobID: jobID})
	}
	onChunk := func(ev orchestrator.ChunkEvent) {
		wc.send(protocol.ChunkSynthesized{
			Type:      protocol.TypeChunkSynthesized,
			RequestID: requestID,
			JobID:     ev.JobID,
			Index:     ev.Index,
			Planned:   ev.Planned,
			Text:      ev.Text,
			Artifact:  ev.Artifact,
		})
	}
	return onStart, onChunk
}

func errorEvent(requestID, jobID string, err error) protocol.ErrorEvent {
	code, ok := speech.CodeOf(err)
	if !ok {
		code = "internal"
	}
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		RequestID: requestID,
		JobID:     jobID,
		Code:      string(code),
		Retryable: reliability.IsRetryableCode(code),
		Detail:    err.Error(),
	}
}
