package trace

// CondLenOp is the opcode of length conditions, which are kept even when unlabeled.
const CondLenOp = 0x8003

// Label is a taint label flag; only set versus unset matters.
type Label bool

// CondBase is the condition record carried by a trace event.
type CondBase struct {
	CmpID     uint32 `json:"cmpid"`
	Op        uint32 `json:"op"`
	Lb1       Label  `json:"lb1"`
	Lb2       Label  `json:"lb2"`
	Order     uint32 `json:"order"`
	Condition uint32 `json:"condition"`
	ThreadID  int32  `json:"tid"`
}

// Event is one record of a raw trace file. Records other than conditions
// carry no base.
type Event struct {
	Base *CondBase `json:"base,omitempty"`
}

// Step is one retained condition of a thread: the comparison site, outcome and
// the iteration part of its ordering value.
type Step struct {
	CmpID     uint32
	Condition uint32
	Order     uint32
}

// ThreadPath is the ordered sequence of steps observed on one thread.
type ThreadPath []Step

// Fingerprint is the canonical, thread-order-insensitive form of a trace.
// Threads are kept sorted and unique, so equal traces have equal fingerprints.
type Fingerprint struct {
	threads []ThreadPath
	key     string
}
