package notify

// bufferedMsg is a serialized message waiting for the broker.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while the broker is unreachable. When full
// the oldest message is discarded. The caller must synchronize.
type outbox struct {
	slots   []bufferedMsg
	oldest  int
	n       int
	dropped int // discarded since the last drain
}

func newOutbox(capacity int) *outbox {
	return &outbox{slots: make([]bufferedMsg, capacity)}
}

// push queues msg. It reports true on the first discard after a drain so the
// caller logs once per outage.
func (o *outbox) push(msg bufferedMsg) bool {
	size := len(o.slots)
	if o.n < size {
		o.slots[(o.oldest+o.n)%size] = msg
		o.n++
		return false
	}
	o.slots[o.oldest] = msg
	o.oldest = (o.oldest + 1) % size
	o.dropped++
	return o.dropped == 1
}

// drain empties the outbox, returning queued messages oldest first and the
// number discarded since the previous drain.
func (o *outbox) drain() ([]bufferedMsg, int) {
	dropped := o.dropped
	o.dropped = 0
	if o.n == 0 {
		o.oldest = 0
		return nil, dropped
	}
	out := make([]bufferedMsg, 0, o.n)
	for i := 0; i < o.n; i++ {
		out = append(out, o.slots[(o.oldest+i)%len(o.slots)])
	}
	o.oldest, o.n = 0, 0
	return out, dropped
}

func (o *outbox) len() int {
	return o.n
}
