// Package motion drives per-character movement on the district's ground
// plane: walking to a point, and leading the player to a destination at
// a pace the player can follow.
package motion

import (
	"log/slog"
	"math"
	"sync"

	"github.com/astcode/simvibe3d/pkg/actor"
)

// Vec2 is a point or direction on the ground plane.
type Vec2 struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

func (v Vec2) Sub(o Vec2) Vec2      { return Vec2{v.X - o.X, v.Z - o.Z} }
func (v Vec2) Add(o Vec2) Vec2      { return Vec2{v.X + o.X, v.Z + o.Z} }
func (v Vec2) Scale(f float64) Vec2 { return Vec2{v.X * f, v.Z * f} }
func (v Vec2) Len() float64         { return math.Hypot(v.X, v.Z) }

// Norm returns the unit vector, or the zero vector for zero input.
func (v Vec2) Norm() Vec2 {
	l := v.Len()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{v.X / l, v.Z / l}
}

// Mode is a character's movement state.
type Mode string

const (
	ModeIdle    Mode = "idle"
	ModeMoving  Mode = "moving"
	ModeLeading Mode = "leading"
)

const (
	// WalkSpeed is the base movement speed in units per second.
	WalkSpeed = 3.0
	// LeadSpeedFactor slows a leading character so the player keeps up.
	LeadSpeedFactor = 0.8
	// WaitDistance is how far the player may fall behind before the
	// leader stops and waits.
	WaitDistance = 8.0
	// ArriveTolerance ends a MoveTo walk.
	ArriveTolerance = 0.5
	// LeadTolerance ends a leading walk.
	LeadTolerance = 2.0
)

// Arrival reports that a character reached its destination during a Tick.
type Arrival struct {
	CharacterID string
	Mode        Mode // the mode that just ended: ModeMoving or ModeLeading
	Destination Vec2
	Label       string // destination label for leading arrivals
}

type charState struct {
	id       string
	pos      Vec2
	facing   Vec2
	home     Vec2
	mode     Mode
	target   Vec2
	onArrive func()

	canLead  bool
	leadDest Vec2
	leadLbl  string
}

// Controller owns the motion state of every registered character.
// At most one character may be leading the player at any instant.
type Controller struct {
	mu      sync.Mutex
	chars   map[string]*charState
	leading string // id of the current leader, empty if none
	logger  *slog.Logger
}

// NewController creates an empty motion controller.
func NewController(logger *slog.Logger) *Controller {
	return &Controller{
		chars:  make(map[string]*charState),
		logger: logger,
	}
}

// Register places a character at its home position in the idle state.
func (c *Controller) Register(p *actor.CharacterProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs := &charState{
		id:      p.ID,
		pos:     Vec2{p.Home.X, p.Home.Z},
		facing:  Vec2{0, 1},
		home:    Vec2{p.Home.X, p.Home.Z},
		mode:    ModeIdle,
		canLead: p.CanLead,
	}
	if p.LeadDestination != nil {
		cs.leadDest = Vec2{p.LeadDestination.X, p.LeadDestination.Z}
		cs.leadLbl = p.LeadDestination.Label
	}
	c.chars[p.ID] = cs
}

// MoveTo starts a character walking to a point, overwriting any prior
// walk target (no queue). The optional onArrival fires exactly once on
// arrival and is then cleared. A leading character cannot be redirected.
func (c *Controller) MoveTo(characterID string, target Vec2, onArrival func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs, ok := c.chars[characterID]
	if !ok || cs.mode == ModeLeading {
		return false
	}
	cs.mode = ModeMoving
	cs.target = target
	cs.onArrive = onArrival
	c.logger.Debug("Character moving", "character_id", characterID, "x", target.X, "z", target.Z)
	return true
}

// ReturnHome walks a character back to its registered home position.
func (c *Controller) ReturnHome(characterID string) bool {
	c.mu.Lock()
	home, ok := c.chars[characterID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	return c.MoveTo(characterID, home.home, nil)
}

// StartLeading puts a character into the leading state toward its fixed
// destination. It fails if the character is unknown, not lead-eligible,
// already leading, or if any other character is currently leading.
func (c *Controller) StartLeading(characterID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs, ok := c.chars[characterID]
	if !ok || !cs.canLead {
		return false
	}
	if c.leading != "" {
		return false
	}

	// Leading and MovingToPoint are mutually exclusive: any pending walk
	// is dropped without firing its arrival hook.
	cs.target = Vec2{}
	cs.onArrive = nil
	cs.mode = ModeLeading
	c.leading = characterID
	c.logger.Info("Character leading player",
		"character_id", characterID,
		"destination", cs.leadLbl)
	return true
}

// StopLeading cancels the active leading walk, if any.
func (c *Controller) StopLeading() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.leading == "" {
		return
	}
	if cs, ok := c.chars[c.leading]; ok {
		cs.mode = ModeIdle
	}
	c.leading = ""
}

// Leader returns the id and destination label of the character currently
// leading the player.
func (c *Controller) Leader() (string, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.leading == "" {
		return "", "", false
	}
	return c.leading, c.chars[c.leading].leadLbl, true
}

// Tick advances every character by dt seconds. followerPos is the
// player's position, used by the leading policy: a leader whose follower
// has fallen behind turns to face them and waits. Arrival callbacks fire
// exactly once; leading arrivals are also returned so callers can emit
// events without the controller holding mutable hooks.
func (c *Controller) Tick(dt float64, followerPos Vec2) []Arrival {
	c.mu.Lock()

	var arrivals []Arrival
	var callbacks []func()

	for _, cs := range c.chars {
		switch cs.mode {
		case ModeMoving:
			dir := cs.target.Sub(cs.pos)
			dist := dir.Len()
			if dist > ArriveTolerance {
				step := WalkSpeed * dt
				if step > dist {
					step = dist
				}
				cs.facing = dir.Norm()
				cs.pos = cs.pos.Add(cs.facing.Scale(step))
				continue
			}
			cs.mode = ModeIdle
			arrivals = append(arrivals, Arrival{
				CharacterID: cs.id,
				Mode:        ModeMoving,
				Destination: cs.target,
			})
			if cs.onArrive != nil {
				callbacks = append(callbacks, cs.onArrive)
				cs.onArrive = nil
			}

		case ModeLeading:
			toFollower := followerPos.Sub(cs.pos)
			toDest := cs.leadDest.Sub(cs.pos)

			if toFollower.Len() > WaitDistance {
				// Wait for the player: face them, do not advance.
				cs.facing = toFollower.Norm()
				continue
			}
			if toDest.Len() > LeadTolerance {
				cs.facing = toDest.Norm()
				cs.pos = cs.pos.Add(cs.facing.Scale(WalkSpeed * LeadSpeedFactor * dt))
				continue
			}
			cs.mode = ModeIdle
			c.leading = ""
			arrivals = append(arrivals, Arrival{
				CharacterID: cs.id,
				Mode:        ModeLeading,
				Destination: cs.leadDest,
				Label:       cs.leadLbl,
			})
		}
	}
	c.mu.Unlock()

	// Callbacks run outside the lock so they may call back into the
	// controller.
	for _, cb := range callbacks {
		cb()
	}
	return arrivals
}

// CharacterState is a snapshot of one character's motion state.
type CharacterState struct {
	CharacterID string `json:"character_id"`
	Mode        Mode   `json:"mode"`
	Position    Vec2   `json:"position"`
	Facing      Vec2   `json:"facing"`
	Destination *Vec2  `json:"destination,omitempty"`
	Label       string `json:"label,omitempty"`
}

// State returns a snapshot of one character.
func (c *Controller) State(characterID string) (CharacterState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs, ok := c.chars[characterID]
	if !ok {
		return CharacterState{}, false
	}
	return snapshot(cs), true
}

// States returns a snapshot of every registered character.
func (c *Controller) States() []CharacterState {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]CharacterState, 0, len(c.chars))
	for _, cs := range c.chars {
		out = append(out, snapshot(cs))
	}
	return out
}

func snapshot(cs *charState) CharacterState {
	s := CharacterState{
		CharacterID: cs.id,
		Mode:        cs.mode,
		Position:    cs.pos,
		Facing:      cs.facing,
	}
	switch cs.mode {
	case ModeMoving:
		t := cs.target
		s.Destination = &t
	case ModeLeading:
		t := cs.leadDest
		s.Destination = &t
		s.Label = cs.leadLbl
	}
	return s
}
