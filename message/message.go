package message

import "fmt"

// Type identifies one of the six wire message kinds. Order matters: it
// doubles as the priority index the output queue's six FIFOs are keyed by
// (lower Type = higher priority), per §4.2/§4.3.
type Type byte

const (
	TypeBroadcast Type = iota
	TypeSwarmList
	TypeVStigPut
	TypeVStigQuery
	TypeSwarmJoin
	TypeSwarmLeave

	numTypes = int(TypeSwarmLeave) + 1
)

func (t Type) String() string {
	switch t {
	case TypeBroadcast:
		return "broadcast"
	case TypeSwarmList:
		return "swarmlist"
	case TypeVStigPut:
		return "vstigput"
	case TypeVStigQuery:
		return "vstigquery"
	case TypeSwarmJoin:
		return "swarmjoin"
	case TypeSwarmLeave:
		return "swarmleave"
	default:
		return fmt.Sprintf("type(%d)", byte(t))
	}
}

// NumTypes is the number of distinct message types, and therefore the
// number of output priority queues the queue package must maintain.
func NumTypes() int { return numTypes }

// Message is one robot-to-neighbor wire message. Not every field is
// populated for every Type; see the per-type Encode/Decode notes below.
type Message struct {
	Type      Type
	RobotID   uint16 // sender's robot id
	Topic     string // TypeBroadcast
	Payload   Value  // TypeBroadcast
	SwarmIDs  []uint16 // TypeSwarmList
	VStigID   uint16 // TypeVStigPut, TypeVStigQuery
	Key       Value  // TypeVStigPut, TypeVStigQuery
	Value     Value  // TypeVStigPut
	Timestamp uint32 // TypeVStigPut, Lamport clock
	SwarmID   uint16 // TypeSwarmJoin, TypeSwarmLeave
}

// Encode serializes m to its wire form: 1 byte type, 2 bytes sender id,
// then type-specific fields.
func Encode(m Message) []byte {
	buf := make([]byte, 0, 16)
	buf = append(buf, byte(m.Type))
	buf = appendU16(buf, m.RobotID)
	switch m.Type {
	case TypeBroadcast:
		buf = appendU16(buf, uint16(len(m.Topic)))
		buf = append(buf, m.Topic...)
		buf = EncodeValue(buf, m.Payload)
	case TypeSwarmList:
		buf = appendU16(buf, uint16(len(m.SwarmIDs)))
		for _, id := range m.SwarmIDs {
			buf = appendU16(buf, id)
		}
	case TypeVStigPut:
		buf = appendU16(buf, m.VStigID)
		buf = EncodeValue(buf, m.Key)
		buf = EncodeValue(buf, m.Value)
		buf = appendU32(buf, m.Timestamp)
	case TypeVStigQuery:
		buf = appendU16(buf, m.VStigID)
		buf = EncodeValue(buf, m.Key)
	case TypeSwarmJoin, TypeSwarmLeave:
		buf = appendU16(buf, m.SwarmID)
	}
	return buf
}

// Decode parses one message from buf. Truncated or malformed input is a
// decode error, never a panic: a neighbor sending a short packet should
// not be able to crash the receiving VM.
func Decode(buf []byte) (Message, error) {
	if len(buf) < 3 {
		return Message{}, fmt.Errorf("message: truncated header")
	}
	m := Message{Type: Type(buf[0])}
	robotID, rest, err := readU16(buf[1:])
	if err != nil {
		return Message{}, err
	}
	m.RobotID = robotID

	switch m.Type {
	case TypeBroadcast:
		n, r, err := readU16(rest)
		if err != nil {
			return Message{}, err
		}
		if len(r) < int(n) {
			return Message{}, fmt.Errorf("message: truncated topic")
		}
		m.Topic, r = string(r[:n]), r[n:]
		m.Payload, _, err = DecodeValue(r)
		if err != nil {
			return Message{}, err
		}
	case TypeSwarmList:
		n, r, err := readU16(rest)
		if err != nil {
			return Message{}, err
		}
		m.SwarmIDs = make([]uint16, 0, n)
		for i := uint16(0); i < n; i++ {
			var id uint16
			id, r, err = readU16(r)
			if err != nil {
				return Message{}, err
			}
			m.SwarmIDs = append(m.SwarmIDs, id)
		}
	case TypeVStigPut:
		id, r, err := readU16(rest)
		if err != nil {
			return Message{}, err
		}
		m.VStigID = id
		m.Key, r, err = DecodeValue(r)
		if err != nil {
			return Message{}, err
		}
		m.Value, r, err = DecodeValue(r)
		if err != nil {
			return Message{}, err
		}
		ts, _, err := readU32(r)
		if err != nil {
			return Message{}, err
		}
		m.Timestamp = ts
	case TypeVStigQuery:
		id, r, err := readU16(rest)
		if err != nil {
			return Message{}, err
		}
		m.VStigID = id
		m.Key, _, err = DecodeValue(r)
		if err != nil {
			return Message{}, err
		}
	case TypeSwarmJoin, TypeSwarmLeave:
		id, _, err := readU16(rest)
		if err != nil {
			return Message{}, err
		}
		m.SwarmID = id
	default:
		return Message{}, fmt.Errorf("message: unknown type %d", m.Type)
	}
	return m, nil
}
