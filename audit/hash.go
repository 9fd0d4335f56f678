package audit

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
)

// serialize renders rec's hash-committed fields in a fixed, canonical
// field order, per spec §4.5 step 1. PreviousHash is included;
// ThisHash is not (it is the output of hashing this serialization).
func serialize(rec *Record) []byte {
	var b strings.Builder
	b.WriteString(rec.ID)
	b.WriteByte('\n')
	b.WriteString(rec.Timestamp.UTC().Format(rfc3339Nano))
	b.WriteByte('\n')
	b.WriteString(rec.UserID)
	b.WriteByte('\n')
	b.WriteString(rec.EventType)
	b.WriteByte('\n')
	b.WriteString(rec.Resource)
	b.WriteByte('\n')
	b.WriteString(rec.Action)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatBool(rec.Success))
	b.WriteByte('\n')
	b.WriteString(rec.IPAddress)
	b.WriteByte('\n')
	b.WriteString(rec.CorrelationID)
	b.WriteByte('\n')
	b.WriteString(rec.Details)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatBool(rec.DetailsSealed))
	b.WriteByte('\n')
	fmt.Fprintf(&b, "%x", rec.PreviousHash)
	return []byte(b.String())
}

const rfc3339Nano = "2006-01-02T15:04:05.000000000Z07:00"

// chainHash computes thisHash = SHA-256(previousHash || serializedRecord)
// per spec §4.5 step 3. rec.PreviousHash must already be set.
func chainHash(rec *Record) [32]byte {
	h := sha256.New()
	h.Write(rec.PreviousHash[:])
	h.Write(serialize(rec))
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
