package transport

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"go-appfw/internal/core"
	"go-appfw/internal/logging"
)

type requestKind int

const (
	kindSubscribe requestKind = iota
	kindSend
	kindList
)

type pendingRequest struct {
	kind requestKind
	id   int
}

// demux tracks requests awaiting a status reply and turns inbound frames
// into Handlers calls on the Poster. Both transports embed it.
type demux struct {
	mu       sync.Mutex
	seqno    int
	pending  map[int]pendingRequest
	handlers Handlers
	loop     Poster
	logger   zerolog.Logger
	debug    *logging.Debugger
}

func newDemux(loop Poster, logger zerolog.Logger) *demux {
	if loop == nil {
		loop = Immediate
	}
	return &demux{
		seqno:   1,
		pending: make(map[int]pendingRequest),
		loop:    loop,
		logger:  logger,
		debug:   logging.NewDebugger(logger),
	}
}

func (d *demux) install(h Handlers) {
	d.mu.Lock()
	d.handlers = h
	d.mu.Unlock()
}

// track allocates the next seqno and remembers what the reply belongs to.
func (d *demux) track(kind requestKind, id int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	seq := d.seqno
	d.seqno++
	d.pending[seq] = pendingRequest{kind: kind, id: id}
	return seq
}

// nextSeqno allocates a seqno for a request that expects no reply.
func (d *demux) nextSeqno() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	seq := d.seqno
	d.seqno++
	return seq
}

func (d *demux) forget(seq int) {
	d.mu.Lock()
	delete(d.pending, seq)
	d.mu.Unlock()
}

func (d *demux) take(seq int) (pendingRequest, Handlers, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	req, ok := d.pending[seq]
	if ok {
		delete(d.pending, seq)
	}
	return req, d.handlers, ok
}

func (d *demux) reset() {
	d.mu.Lock()
	d.pending = make(map[int]pendingRequest)
	d.mu.Unlock()
}

// deliver routes one inbound frame. It runs on the transport's reader
// goroutine and hands the handler call to the loop.
func (d *demux) deliver(msg Message) {
	d.debug.Site("transport").Str("type", msg.Type).Int("seqno", msg.Seqno).Msg("received message")

	switch msg.Type {
	case TypeEvent:
		if msg.Event == nil || msg.Event.Event == "" {
			d.logger.Warn().Msg("event message without event name")
			return
		}
		d.mu.Lock()
		h := d.handlers
		d.mu.Unlock()
		name, data := msg.Event.Event, rawOrNull(msg.Event.Data)
		d.loop.Post(func() { h.Event(name, data) })

	case TypeStatus:
		req, h, ok := d.take(msg.Seqno)
		if !ok {
			d.debug.Site("transport").Int("seqno", msg.Seqno).Msg("dropping reply to unknown request")
			return
		}
		st := Status{Status: StatusProtocol, Message: "malformed status reply"}
		if msg.Status != nil {
			st = *msg.Status
		}
		seq := msg.Seqno
		switch req.kind {
		case kindSubscribe:
			data := rawOrNull(st.Data)
			d.loop.Post(func() { h.Status(seq, st.Status, st.Message, data) })
		case kindSend:
			d.loop.Post(func() { h.SendAck(req.id, seq, st.Status, st.Message) })
		case kindList:
			apps, err := decodeApps(st.Data)
			if err != nil {
				d.logger.Warn().Err(err).Int("seqno", seq).Msg("malformed application list")
				st = Status{Status: StatusProtocol, Message: "malformed application list"}
			}
			d.loop.Post(func() { h.ListReply(req.id, seq, st.Status, st.Message, apps) })
		}

	default:
		d.logger.Warn().Str("type", msg.Type).Msg("unexpected message from relay")
	}
}

func decodeApps(raw json.RawMessage) ([]core.AppInfo, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []core.AppInfo{}, nil
	}
	var apps []core.AppInfo
	if err := json.Unmarshal(raw, &apps); err != nil {
		return []core.AppInfo{}, err
	}
	return apps, nil
}
