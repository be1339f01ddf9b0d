package checker

import "bytes"

// writeEntry is one write's footprint: what it wrote (or that it was a
// tombstone), and the timestamps a GET is checked against.
type writeEntry struct {
	tombstone bool
	value     []byte
	startTS   int64
	ackTS     int64
}

type writeKey struct {
	key     string
	version uint64
}

// Check builds the (key, version) -> write index described by the spec
// and classifies every GetOk in history against it, returning one
// Violation per inconsistent read. The order of history does not change
// which violations are found: the index is built from the whole history
// before any GET is checked, and violations are independent across GETs.
// The returned slice lists them in the order their GETs appear in history.
func Check(history []OpRecord) []Violation {
	index := make(map[writeKey]writeEntry, len(history))
	// writesByKey tracks, per key, all versions with their ackTS so
	// StaleDataReturned can find the newest version acked before a GET's
	// start without rescanning the whole history for every GET.
	var writesByKey = make(map[string][]writeEntryWithVersion)

	for _, op := range history {
		switch op.Kind {
		case OpPut:
			if op.Outcome.Kind != OutcomePutOk {
				continue
			}
			we := writeEntry{
				tombstone: false,
				value:     op.Outcome.Value,
				startTS:   op.StartTS,
				ackTS:     op.AckTS,
			}
			index[writeKey{op.Key, op.Outcome.Version}] = we
			writesByKey[op.Key] = append(writesByKey[op.Key], writeEntryWithVersion{we, op.Outcome.Version})
		case OpDelete:
			if op.Outcome.Kind != OutcomeDeleteOk {
				continue
			}
			we := writeEntry{
				tombstone: true,
				startTS:   op.StartTS,
				ackTS:     op.AckTS,
			}
			index[writeKey{op.Key, op.Outcome.Version}] = we
			writesByKey[op.Key] = append(writesByKey[op.Key], writeEntryWithVersion{we, op.Outcome.Version})
		}
	}

	var violations []Violation
	for _, op := range history {
		if op.Kind != OpGet || op.Outcome.Kind != OutcomeGetOk {
			continue
		}
		if v, ok := checkGet(op, index, writesByKey); ok {
			violations = append(violations, v)
		}
	}
	return violations
}

type writeEntryWithVersion struct {
	writeEntry
	version uint64
}

func checkGet(op OpRecord, index map[writeKey]writeEntry, writesByKey map[string][]writeEntryWithVersion) (Violation, bool) {
	version := op.Outcome.Version
	we, ok := index[writeKey{op.Key, version}]
	if !ok {
		return Violation{Key: op.Key, Version: version, Kind: VersionNotFound, Actual: version}, true
	}

	if we.startTS > op.AckTS {
		return Violation{
			Key:          op.Key,
			Version:      version,
			Kind:         ReadBeforeWriteStart,
			WriteStartTS: we.startTS,
			GetAckTS:     op.AckTS,
		}, true
	}

	if we.ackTS <= op.StartTS {
		if we.tombstone {
			return Violation{Key: op.Key, Version: version, Kind: VersionNotFound, Actual: version}, true
		}
		if !bytes.Equal(we.value, op.Outcome.Value) {
			return Violation{
				Key:           op.Key,
				Version:       version,
				Kind:          ValueMismatch,
				ExpectedValue: we.value,
				ActualValue:   op.Outcome.Value,
			}, true
		}

		var latest uint64
		found := false
		for _, candidate := range writesByKey[op.Key] {
			if candidate.version > version && candidate.ackTS < op.StartTS {
				if !found || candidate.version > latest {
					latest = candidate.version
					found = true
				}
			}
		}
		if found {
			return Violation{
				Key:                op.Key,
				Version:            version,
				Kind:               StaleDataReturned,
				LatestKnownVersion: latest,
			}, true
		}
		return Violation{}, false
	}

	// Overlapping windows: ambiguous, no violation.
	return Violation{}, false
}
