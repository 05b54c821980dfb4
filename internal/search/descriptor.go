package search

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/dirtbags/pcapdb/internal/fidx"
)

// RangeSearch is one `<keytype> <result_name> <start_key> <end_key>`
// line: a single sub-index scan to run (§6.3).
type RangeSearch struct {
	KeyType    fidx.KeyType
	ResultName string
	StartKey   []byte
	EndKey     []byte
}

// AndOperand is one operand of an `AND` directive: the 0-based index of
// the RangeSearch it refers to (in order of appearance), and whether it
// is inverted (a `!` prefix).
type AndOperand struct {
	SubsearchID int
	Inverted    bool
}

// AndOp is one `AND <result_name> [!]<subsearch_id>...` directive.
type AndOp struct {
	ResultName string
	Operands   []AndOperand
}

// IntervalSet is one `PARTIAL`/`FULL` directive: a named result plus the
// index intervals it covers.
type IntervalSet struct {
	ResultName string
	IndexIDs   []string
}

// Descriptor is a fully parsed search descriptor file (§6.3).
type Descriptor struct {
	Ranges []RangeSearch
	Ands   []AndOp

	// OrResultName names the single OR directive combining every AND
	// result; empty if the descriptor has no OR line.
	OrResultName string

	Start    fidx.Timeval32
	HasStart bool
	End      fidx.Timeval32
	HasEnd   bool
	Proto    uint8

	Partial []IntervalSet
	Full    []IntervalSet
}

// Filter builds the {start_ts, end_ts, proto} triple FlowFetch expects
// from the descriptor's START/END/PROTO directives.
func (d *Descriptor) Filter() Filter {
	return Filter{Start: d.Start, HasStart: d.HasStart, End: d.End, HasEnd: d.HasEnd, Proto: d.Proto}
}

var keyTypeNames = map[string]fidx.KeyType{
	"FLOW":    fidx.Flow,
	"SRCv4":   fidx.SrcV4,
	"DSTv4":   fidx.DstV4,
	"SRCv6":   fidx.SrcV6,
	"DSTv6":   fidx.DstV6,
	"SRCPORT": fidx.SrcPort,
	"DSTPORT": fidx.DstPort,
}

// ParseDescriptor parses a search descriptor file, one directive per
// line, trailing `#`-comments and blank lines ignored.
func ParseDescriptor(r io.Reader) (*Descriptor, error) {
	d := &Descriptor{}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		directive := fields[0]
		args := fields[1:]

		_, isKeyType := keyTypeNames[directive]

		var err error
		switch {
		case isKeyType:
			err = parseRangeSearch(d, directive, args)
		case directive == "AND":
			err = parseAnd(d, args)
		case directive == "OR":
			err = parseOr(d, args)
		case directive == "START":
			err = parseStart(d, args)
		case directive == "END":
			err = parseEnd(d, args)
		case directive == "PROTO":
			err = parseProto(d, args)
		case directive == "PARTIAL":
			err = parseInterval(&d.Partial, args)
		case directive == "FULL":
			err = parseInterval(&d.Full, args)
		default:
			err = fmt.Errorf("unknown directive %q", directive)
		}
		if err != nil {
			return nil, fmt.Errorf("search descriptor line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return d, nil
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}

func parseRangeSearch(d *Descriptor, ktName string, args []string) error {
	kt, ok := keyTypeNames[ktName]
	if !ok {
		return fmt.Errorf("unknown key type %q", ktName)
	}
	if len(args) != 3 {
		return fmt.Errorf("%s: want 3 fields (result_name start_key end_key), got %d", ktName, len(args))
	}
	startKey, err := EncodeKey(kt, args[1])
	if err != nil {
		return fmt.Errorf("start_key: %w", err)
	}
	endKey, err := EncodeKey(kt, args[2])
	if err != nil {
		return fmt.Errorf("end_key: %w", err)
	}
	d.Ranges = append(d.Ranges, RangeSearch{KeyType: kt, ResultName: args[0], StartKey: startKey, EndKey: endKey})
	return nil
}

func parseAnd(d *Descriptor, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("AND: want a result name and at least one operand")
	}
	op := AndOp{ResultName: args[0]}
	for _, tok := range args[1:] {
		inverted := strings.HasPrefix(tok, "!")
		tok = strings.TrimPrefix(tok, "!")
		id, err := strconv.Atoi(tok)
		if err != nil {
			return fmt.Errorf("AND operand %q: %w", tok, err)
		}
		op.Operands = append(op.Operands, AndOperand{SubsearchID: id, Inverted: inverted})
	}
	d.Ands = append(d.Ands, op)
	return nil
}

func parseOr(d *Descriptor, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("OR: want exactly one result name, got %d fields", len(args))
	}
	d.OrResultName = args[0]
	return nil
}

func parseStart(d *Descriptor, args []string) error {
	ts, err := parseTimeval(args)
	if err != nil {
		return err
	}
	d.Start, d.HasStart = ts, true
	return nil
}

func parseEnd(d *Descriptor, args []string) error {
	ts, err := parseTimeval(args)
	if err != nil {
		return err
	}
	d.End, d.HasEnd = ts, true
	return nil
}

func parseTimeval(args []string) (fidx.Timeval32, error) {
	if len(args) != 1 {
		return fidx.Timeval32{}, fmt.Errorf("want exactly one epoch.usec field, got %d", len(args))
	}
	secStr, usecStr, _ := strings.Cut(args[0], ".")
	sec, err := strconv.ParseUint(secStr, 10, 32)
	if err != nil {
		return fidx.Timeval32{}, fmt.Errorf("seconds: %w", err)
	}
	var usec uint64
	if usecStr != "" {
		usec, err = strconv.ParseUint(usecStr, 10, 32)
		if err != nil {
			return fidx.Timeval32{}, fmt.Errorf("microseconds: %w", err)
		}
	}
	return fidx.Timeval32{Sec: uint32(sec), Usec: uint32(usec)}, nil
}

func parseProto(d *Descriptor, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("PROTO: want exactly one field, got %d", len(args))
	}
	v, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil {
		return fmt.Errorf("PROTO: %w", err)
	}
	d.Proto = uint8(v)
	return nil
}

func parseInterval(dst *[]IntervalSet, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("want a result name and at least one index id, got %d fields", len(args))
	}
	*dst = append(*dst, IntervalSet{ResultName: args[0], IndexIDs: append([]string(nil), args[1:]...)})
	return nil
}

// EncodeKey encodes a descriptor's textual start_key/end_key into the
// on-disk byte form CompareKeys and RangeScan operate on: a dotted-quad
// or colon-hex address for the IP key types, a decimal port number for
// the port key types (LE-encoded, matching writer.portKeyBytes), and a
// hex-encoded 64-byte blob for FLOW (the search descriptor format gives
// no other way to spell a full flow key in text).
func EncodeKey(kt fidx.KeyType, text string) ([]byte, error) {
	switch kt {
	case fidx.SrcV4, fidx.DstV4:
		ip := net.ParseIP(text)
		if ip == nil {
			return nil, fmt.Errorf("invalid IPv4 address %q", text)
		}
		v4 := ip.To4()
		if v4 == nil {
			return nil, fmt.Errorf("%q is not an IPv4 address", text)
		}
		return v4, nil
	case fidx.SrcV6, fidx.DstV6:
		ip := net.ParseIP(text)
		if ip == nil {
			return nil, fmt.Errorf("invalid IPv6 address %q", text)
		}
		return ip.To16(), nil
	case fidx.SrcPort, fidx.DstPort:
		p, err := strconv.ParseUint(text, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", text, err)
		}
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(p))
		return buf, nil
	case fidx.Flow:
		buf, err := hex.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("invalid flow key hex %q: %w", text, err)
		}
		if len(buf) != fidx.Flow.KeySize() {
			return nil, fmt.Errorf("flow key must be %d bytes, got %d", fidx.Flow.KeySize(), len(buf))
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("unsupported key type %v", kt)
	}
}
