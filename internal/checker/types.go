// Package checker implements the offline history analyzer: given a
// recorded sequence of client operations against a transdb node, it
// rebuilds the set of writes that actually happened and classifies every
// observed GET against that index, separating violations that indicate a
// broken safety guarantee from ones that are merely staleness under the
// system's explicit eventual-consistency contract.
package checker

// OpKind identifies which operation an OpRecord describes.
type OpKind int

const (
	OpGet OpKind = iota
	OpPut
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpGet:
		return "GET"
	case OpPut:
		return "PUT"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// OutcomeKind identifies which result an Outcome describes, and so which
// of its fields are meaningful.
type OutcomeKind int

const (
	OutcomePutOk OutcomeKind = iota
	OutcomeDeleteOk
	OutcomeGetOk
	OutcomeNotFound
	OutcomeError
)

// Outcome carries the observed result of an operation. Version and Value
// are populated for PutOk/DeleteOk/GetOk only; Value is the payload the
// client sent (for PutOk) or received (for GetOk).
type Outcome struct {
	Kind    OutcomeKind
	Version uint64
	Value   []byte
}

// PutOk builds a successful-PUT outcome. value is what the client sent.
func PutOk(version uint64, value []byte) Outcome {
	return Outcome{Kind: OutcomePutOk, Version: version, Value: value}
}

// DeleteOk builds an outcome for a DELETE that wrote a tombstone (the
// client saw 200 + ETag). A DELETE that got a 204 no-op must instead be
// recorded as NotFound — it produced no write for the index to find.
func DeleteOk(version uint64) Outcome {
	return Outcome{Kind: OutcomeDeleteOk, Version: version}
}

// GetOk builds a successful-GET outcome. value is what the client received.
func GetOk(version uint64, value []byte) Outcome {
	return Outcome{Kind: OutcomeGetOk, Version: version, Value: value}
}

// NotFoundOutcome builds an outcome for a 404 GET or a 204 no-op DELETE.
func NotFoundOutcome() Outcome { return Outcome{Kind: OutcomeNotFound} }

// ErrorOutcome builds an outcome for a 5xx response or a transport failure.
func ErrorOutcome() Outcome { return Outcome{Kind: OutcomeError} }

// OpRecord is one entry in a recorded operation history: a single client
// call against a single key, bracketed by the monotonic timestamps at
// which it was issued and fully acknowledged.
type OpRecord struct {
	StartTS int64
	AckTS   int64
	Key     string
	Kind    OpKind
	Outcome Outcome
}

// ViolationKind classifies a single inconsistent GET.
type ViolationKind int

const (
	// VersionNotFound: no write ever produced (key, version), or a GET
	// returned a data payload for a version a tombstone occupies.
	VersionNotFound ViolationKind = iota
	// ReadBeforeWriteStart: the write producing the returned version
	// started after the GET was fully acked — causally impossible.
	ReadBeforeWriteStart
	// ValueMismatch: the write was definitively acked before the GET
	// started, and its payload differs from what the GET returned.
	ValueMismatch
	// StaleDataReturned: a strictly newer write for the same key was
	// already acked before the GET started, yet the GET returned an
	// older version.
	StaleDataReturned
)

// Severity classifies whether a violation implies a broken safety
// guarantee (Hard) or is merely staleness under the system's explicit
// eventual-consistency contract (Soft).
type Severity int

const (
	Hard Severity = iota
	Soft
)

func (k ViolationKind) Severity() Severity {
	if k == StaleDataReturned {
		return Soft
	}
	return Hard
}

func (k ViolationKind) String() string {
	switch k {
	case VersionNotFound:
		return "VersionNotFound"
	case ReadBeforeWriteStart:
		return "ReadBeforeWriteStart"
	case ValueMismatch:
		return "ValueMismatch"
	case StaleDataReturned:
		return "StaleDataReturned"
	default:
		return "Unknown"
	}
}

// Violation is one inconsistent GET found by Check.
type Violation struct {
	Key     string
	Version uint64
	Kind    ViolationKind

	// Detail fields, populated per Kind; zero-valued when not applicable.
	Actual              uint64 // VersionNotFound: the version the GET actually returned (== Version)
	WriteStartTS        int64  // ReadBeforeWriteStart
	GetAckTS            int64  // ReadBeforeWriteStart
	ExpectedValue       []byte // ValueMismatch
	ActualValue         []byte // ValueMismatch
	LatestKnownVersion  uint64 // StaleDataReturned
}

func (v Violation) Severity() Severity { return v.Kind.Severity() }
