package repositories

import (
	"fmt"
	"live-hub/domain"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Deterministic encoding: the same record always produces the same bytes,
// which keeps Redis sorted-set members stable across retries.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("repositories: CBOR encoder initialization failed: " + err.Error())
	}
}

// diskRecord is the stored form of a PersistedRecord. The payload is kept as
// one optional field per variant of the closed event set.
type diskRecord struct {
	RoomID     string                  `cbor:"1,keyasint"`
	Seq        uint64                  `cbor:"2,keyasint"`
	PrevSeq    uint64                  `cbor:"3,keyasint"`
	Sender     string                  `cbor:"4,keyasint,omitempty"`
	SenderUser string                  `cbor:"5,keyasint,omitempty"`
	Type       string                  `cbor:"6,keyasint"`
	At         int64                   `cbor:"7,keyasint"`
	Message    *domain.MessagePayload  `cbor:"8,keyasint,omitempty"`
	Stroke     *domain.StrokePayload   `cbor:"9,keyasint,omitempty"`
	Presence   *domain.PresencePayload `cbor:"10,keyasint,omitempty"`
	Notice     *domain.DegradedNotice  `cbor:"11,keyasint,omitempty"`
}

type diskIncarnation struct {
	Scope     string `cbor:"1,keyasint"`
	Kind      string `cbor:"2,keyasint"`
	RoomID    string `cbor:"3,keyasint"`
	CreatedAt int64  `cbor:"4,keyasint"`
}

func encodeRecord(record domain.PersistedRecord) ([]byte, error) {
	evt := record.Event
	disk := diskRecord{
		RoomID:     string(record.RoomID),
		Seq:        record.Seq,
		PrevSeq:    record.PrevSeq,
		Sender:     string(evt.Sender),
		SenderUser: string(evt.SenderUser),
		Type:       string(evt.Type),
		At:         evt.At.UnixNano(),
	}
	switch p := evt.Payload.(type) {
	case domain.MessagePayload:
		disk.Message = &p
	case domain.StrokePayload:
		disk.Stroke = &p
	case domain.PresencePayload:
		disk.Presence = &p
	case domain.DegradedNotice:
		disk.Notice = &p
	case domain.ClearPayload:
	default:
		return nil, fmt.Errorf("unsupported payload %T", evt.Payload)
	}
	return encMode.Marshal(disk)
}

func decodeRecord(b []byte) (domain.PersistedRecord, error) {
	var disk diskRecord
	if err := cbor.Unmarshal(b, &disk); err != nil {
		return domain.PersistedRecord{}, err
	}
	evt := domain.Event{
		RoomID:     domain.RoomID(disk.RoomID),
		Sender:     domain.ConnectionID(disk.Sender),
		SenderUser: domain.UserID(disk.SenderUser),
		Type:       domain.EventType(disk.Type),
		Seq:        disk.Seq,
		At:         time.Unix(0, disk.At).UTC(),
	}
	switch evt.Type {
	case domain.EventMessage:
		if disk.Message == nil {
			return domain.PersistedRecord{}, fmt.Errorf("record %d: missing message payload", disk.Seq)
		}
		evt.Payload = *disk.Message
	case domain.EventDrawStroke:
		if disk.Stroke == nil {
			return domain.PersistedRecord{}, fmt.Errorf("record %d: missing stroke payload", disk.Seq)
		}
		evt.Payload = *disk.Stroke
	case domain.EventClear:
		evt.Payload = domain.ClearPayload{}
	case domain.EventPresence:
		if disk.Presence == nil {
			return domain.PersistedRecord{}, fmt.Errorf("record %d: missing presence payload", disk.Seq)
		}
		evt.Payload = *disk.Presence
	case domain.EventDegradedNotice:
		if disk.Notice == nil {
			return domain.PersistedRecord{}, fmt.Errorf("record %d: missing notice payload", disk.Seq)
		}
		evt.Payload = *disk.Notice
	default:
		return domain.PersistedRecord{}, fmt.Errorf("record %d: unknown event type %q", disk.Seq, disk.Type)
	}
	return domain.PersistedRecord{
		RoomID:  evt.RoomID,
		Seq:     disk.Seq,
		PrevSeq: disk.PrevSeq,
		Event:   evt,
	}, nil
}

func encodeIncarnation(inc domain.RoomIncarnation) ([]byte, error) {
	return encMode.Marshal(diskIncarnation{
		Scope:     inc.Key.Scope,
		Kind:      string(inc.Key.Kind),
		RoomID:    string(inc.RoomID),
		CreatedAt: inc.CreatedAt.UnixNano(),
	})
}

func decodeIncarnation(b []byte) (domain.RoomIncarnation, error) {
	var disk diskIncarnation
	if err := cbor.Unmarshal(b, &disk); err != nil {
		return domain.RoomIncarnation{}, err
	}
	return domain.RoomIncarnation{
		Key:       domain.NewRoomKey(disk.Scope, domain.RoomKind(disk.Kind)),
		RoomID:    domain.RoomID(disk.RoomID),
		CreatedAt: time.Unix(0, disk.CreatedAt).UTC(),
	}, nil
}

// checkChain keeps the records that follow sinceSeq without a hole in the
// persistable chain. When a hole is found (pruned or never stored) only the
// contiguous tail after the last hole is returned, with ErrIncompleteHistory.
func checkChain(records []domain.PersistedRecord, sinceSeq uint64) ([]domain.PersistedRecord, bool) {
	start := 0
	complete := true
	for i, record := range records {
		if i == 0 {
			if record.PrevSeq > sinceSeq {
				complete = false
			}
			continue
		}
		if record.PrevSeq != records[i-1].Seq {
			start = i
			complete = false
		}
	}
	return records[start:], complete
}
