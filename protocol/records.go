package protocol

// Vector is a 2D point or direction on the wire.
type Vector struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Movement tokens carried by ControlCommand.Moving.
const (
	MoveNone  = "none"
	MoveUp    = "up"
	MoveDown  = "down"
	MoveLeft  = "left"
	MoveRight = "right"
)

// Fire tokens carried by ControlCommand.Fire.
const (
	FireNone = "none"
	FireMain = "main"
	FireAlt  = "alt"
)

// Record is any message identified by its discriminant field.
type Record interface {
	Kind() string
}

// Tank is the per-tick state of one player's tank.
type Tank struct {
	ID           int    `json:"tank" msgpack:"tank"`
	Loc          Vector `json:"loc" msgpack:"loc"`
	BodyDir      Vector `json:"bdir" msgpack:"bdir"`
	Aim          Vector `json:"tdir" msgpack:"tdir"`
	Name         string `json:"name" msgpack:"name"`
	HP           int    `json:"hp" msgpack:"hp"`
	Score        int    `json:"score" msgpack:"score"`
	Died         bool   `json:"died" msgpack:"died"`
	Disconnected bool   `json:"dc" msgpack:"dc"`
	Joined       bool   `json:"join" msgpack:"join"`
}

// Wall is a static axis-aligned segment, sent once during the handshake.
type Wall struct {
	ID int    `json:"wall" msgpack:"wall"`
	P1 Vector `json:"p1" msgpack:"p1"`
	P2 Vector `json:"p2" msgpack:"p2"`
}

type Powerup struct {
	ID   int    `json:"power" msgpack:"power"`
	Loc  Vector `json:"loc" msgpack:"loc"`
	Died bool   `json:"died" msgpack:"died"`
}

type Projectile struct {
	ID    int    `json:"proj" msgpack:"proj"`
	Loc   Vector `json:"loc" msgpack:"loc"`
	Dir   Vector `json:"dir" msgpack:"dir"`
	Died  bool   `json:"died" msgpack:"died"`
	Owner int    `json:"owner" msgpack:"owner"`
}

// Beam is an instantaneous hit-scan shot. It appears in exactly one
// broadcast.
type Beam struct {
	ID     int    `json:"beam" msgpack:"beam"`
	Origin Vector `json:"org" msgpack:"org"`
	Dir    Vector `json:"dir" msgpack:"dir"`
	Owner  int    `json:"owner" msgpack:"owner"`
}

// ControlCommand is sent by a client once per frame.
type ControlCommand struct {
	Moving string `json:"moving"`
	Fire   string `json:"fire"`
	Aim    Vector `json:"tdir"`
}

func (Tank) Kind() string           { return KindTank }
func (Wall) Kind() string           { return KindWall }
func (Powerup) Kind() string        { return KindPowerup }
func (Projectile) Kind() string     { return KindProjectile }
func (Beam) Kind() string           { return KindBeam }
func (ControlCommand) Kind() string { return KindControl }

// Discriminant keys. The control command has no ID, so its movement key
// identifies it.
const (
	KindTank       = "tank"
	KindWall       = "wall"
	KindPowerup    = "power"
	KindProjectile = "proj"
	KindBeam       = "beam"
	KindControl    = "moving"
)
