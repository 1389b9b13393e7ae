package stream

import (
	"encoding/json"
	"time"

	"profwatch/internal/calltree"
	"profwatch/internal/model"
)

type NodeFrame struct {
	Path    string         `json:"path"`
	Depth   int            `json:"depth"`
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Metrics []model.Metric `json:"metrics"`
}

// TreeFrame is the full shape of one session's tree plus what changed in the last
// snapshot. Nodes are in preorder, children in first-seen order.
type TreeFrame struct {
	SessionID     string      `json:"session_id"`
	Flavor        string      `json:"flavor"`
	Epoch         uint64      `json:"epoch"`
	TimestampUnix int64       `json:"timestamp_unix"`
	Reset         bool        `json:"reset"`
	Added         []string    `json:"added,omitempty"`
	Updated       []string    `json:"updated,omitempty"`
	Removed       []string    `json:"removed,omitempty"`
	Nodes         []NodeFrame `json:"nodes"`
}

type FrameHeader struct {
	SessionID string
	Flavor    model.Flavor
	At        time.Time
	Reset     bool
}

// NewTreeFrame flattens t. The caller must hold the tree's read lock. A reset frame
// carries no nodes.
func NewTreeFrame(h FrameHeader, t *calltree.Tree, d calltree.Delta) TreeFrame {
	at := h.At
	if at.IsZero() {
		at = time.Now()
	}
	f := TreeFrame{
		SessionID:     h.SessionID,
		Flavor:        h.Flavor.String(),
		Epoch:         d.Epoch,
		TimestampUnix: at.UTC().Unix(),
		Reset:         h.Reset,
		Added:         pathStrings(d.Added),
		Updated:       pathStrings(d.Updated),
		Removed:       pathStrings(d.Removed),
		Nodes:         []NodeFrame{},
	}
	if h.Reset || t == nil {
		return f
	}

	var stack []string
	t.Walk(func(n calltree.Node, level int) bool {
		stack = append(stack[:level], n.ID)
		path := calltree.Path(stack[1:])
		f.Nodes = append(f.Nodes, NodeFrame{
			Path:    path.String(),
			Depth:   n.Depth,
			ID:      n.ID,
			Name:    n.Name,
			Metrics: n.Metrics,
		})
		return true
	})
	return f
}

// Envelope wraps f for transports that multiplex frame types.
func (f TreeFrame) Envelope() model.Envelope {
	typ := model.FrameTypeTree
	if f.Reset {
		typ = model.FrameTypeReset
	}
	return model.Envelope{Type: typ, SessionID: f.SessionID, TimestampUnix: f.TimestampUnix, Payload: f}
}

func EncodeEnvelope(e model.Envelope) ([]byte, error) {
	return json.Marshal(e)
}

func pathStrings(ps []calltree.Path) []string {
	if len(ps) == 0 {
		return nil
	}
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.String()
	}
	return out
}
