package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrUnknownRecord means the line is a JSON object with no known
	// discriminant key.
	ErrUnknownRecord = errors.New("unknown record")
	// ErrMalformed means the line is not a decodable JSON object.
	ErrMalformed = errors.New("malformed record")
)

// dispatch order; the first discriminant present wins
var kinds = []string{KindTank, KindWall, KindPowerup, KindProjectile, KindBeam, KindControl}

// Decode parses one line into the record whose discriminant key it
// carries.
func Decode(line string) (Record, error) {
	raw := []byte(strings.TrimSpace(line))
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, k := range kinds {
		if _, ok := fields[k]; !ok {
			continue
		}
		rec, err := decodeKind(k, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, k, err)
		}
		return rec, nil
	}
	return nil, ErrUnknownRecord
}

func decodeKind(kind string, raw []byte) (Record, error) {
	switch kind {
	case KindTank:
		var t Tank
		err := json.Unmarshal(raw, &t)
		return t, err
	case KindWall:
		var w Wall
		err := json.Unmarshal(raw, &w)
		return w, err
	case KindPowerup:
		var p Powerup
		err := json.Unmarshal(raw, &p)
		return p, err
	case KindProjectile:
		var p Projectile
		err := json.Unmarshal(raw, &p)
		return p, err
	case KindBeam:
		var b Beam
		err := json.Unmarshal(raw, &b)
		return b, err
	default:
		var c ControlCommand
		err := json.Unmarshal(raw, &c)
		return c, err
	}
}

// DecodeCommand decodes a client line, rejecting anything that is not a
// control command.
func DecodeCommand(line string) (ControlCommand, error) {
	rec, err := Decode(line)
	if err != nil {
		return ControlCommand{}, err
	}
	cmd, ok := rec.(ControlCommand)
	if !ok {
		return ControlCommand{}, fmt.Errorf("%w: expected control command, got %s", ErrUnknownRecord, rec.Kind())
	}
	return cmd, nil
}

// EncodeLine serializes a record followed by a newline.
func EncodeLine(r Record) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", r.Kind(), err)
	}
	return string(data) + "\n", nil
}

// Snapshot is everything broadcast for one tick, each slice in ascending
// ID order.
type Snapshot struct {
	Tick        uint64       `json:"tick" msgpack:"tick"`
	Tanks       []Tank       `json:"tanks" msgpack:"tanks"`
	Powerups    []Powerup    `json:"powerups" msgpack:"powerups"`
	Projectiles []Projectile `json:"projectiles" msgpack:"projectiles"`
	Beams       []Beam       `json:"beams" msgpack:"beams"`
}

// Frame renders the snapshot as the newline-delimited game broadcast:
// tanks, then powerups, projectiles and beams. The output is a pure
// function of the snapshot.
func (s *Snapshot) Frame() (string, error) {
	var b strings.Builder
	write := func(r Record) error {
		line, err := EncodeLine(r)
		if err != nil {
			return err
		}
		b.WriteString(line)
		return nil
	}
	for _, t := range s.Tanks {
		if err := write(t); err != nil {
			return "", err
		}
	}
	for _, p := range s.Powerups {
		if err := write(p); err != nil {
			return "", err
		}
	}
	for _, p := range s.Projectiles {
		if err := write(p); err != nil {
			return "", err
		}
	}
	for _, bm := range s.Beams {
		if err := write(bm); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

// Pack encodes the snapshot with msgpack for spectators.
func (s *Snapshot) Pack() ([]byte, error) {
	data, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("msgpack snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot reverses Pack.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("msgpack snapshot: %w", err)
	}
	return &s, nil
}

// Welcome is the first message a spectator receives: the static part of
// the world.
type Welcome struct {
	Size  int    `json:"size" msgpack:"size"`
	Walls []Wall `json:"walls" msgpack:"walls"`
}

// Pack encodes the welcome with msgpack.
func (w Welcome) Pack() ([]byte, error) {
	data, err := msgpack.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("msgpack welcome: %w", err)
	}
	return data, nil
}

// Handshake renders the server's reply to a new client: tank ID, world
// size, every wall, then the new tank.
func Handshake(tankID, worldSize int, walls []Wall, tank Tank) (string, error) {
	var b strings.Builder
	b.WriteString(strconv.Itoa(tankID))
	b.WriteByte('\n')
	b.WriteString(strconv.Itoa(worldSize))
	b.WriteByte('\n')
	for _, w := range walls {
		line, err := EncodeLine(w)
		if err != nil {
			return "", err
		}
		b.WriteString(line)
	}
	line, err := EncodeLine(tank)
	if err != nil {
		return "", err
	}
	b.WriteString(line)
	return b.String(), nil
}

// ParseInt reads one of the handshake's bare integer lines.
func ParseInt(line string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("%w: expected integer: %v", ErrMalformed, err)
	}
	return n, nil
}
