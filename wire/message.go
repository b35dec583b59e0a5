// Package wire is the protocol codec for the robot control link. It maps
// typed in-process messages to and from the link's deliberately
// heterogeneous wire formats: compact comma-delimited commands, JSON
// objects and arrays, and a legacy whitespace grid format.
//
// Both message sets are closed: the decoder only ever constructs the
// Incoming variants below, and the encoder only accepts the Outgoing ones.
// Decoding never fails — a line matching no structured format degrades to
// Raw passthrough with the original text preserved.
package wire

// Incoming is a message decoded from the peer. The concrete types form a
// closed set; switch exhaustively at the application boundary.
type Incoming interface {
	isIncoming()
}

// Outgoing is a message the application asks the encoder to put on the
// wire. Also a closed set.
type Outgoing interface {
	isOutgoing()
}

// Pose is one robot position and heading, used standalone and in paths.
type Pose struct {
	X, Y int
	Dir  Direction
}

// RobotUpdate reports the robot's current pose.
type RobotUpdate struct {
	X, Y int
	Dir  Direction
}

// TargetFound reports that the camera identified a target image on an
// obstacle. Face is nil when the sender did not include one.
type TargetFound struct {
	ObstacleID string
	TargetID   string
	Face       *Direction
}

// StatusUpdate carries free-form status text (STATUS and MSG commands,
// JSON message/status fields).
type StatusUpdate struct {
	Text string
}

// GridHex is an arena snapshot packed as a hex string.
type GridHex struct {
	Hex string
}

// GridBits is an arena snapshot as an explicit cell grid, from the legacy
// whitespace format or a JSON grid array. Cells are row-major,
// Width*Height entries, true = occupied.
type GridBits struct {
	Width, Height  int
	RobotX, RobotY int
	RobotDir       Direction
	Cells          []bool
}

// ArenaResize changes the arena dimensions.
type ArenaResize struct {
	Width, Height int
}

// ObstacleOp says what an ObstacleUpdate does.
type ObstacleOp int

const (
	ObstacleAdd ObstacleOp = iota
	ObstacleRemove
	ObstacleSetFace
)

// ObstacleUpdate adds, removes, or re-faces one obstacle. X/Y are only
// meaningful for ObstacleAdd; Face only for ObstacleAdd (optional) and
// ObstacleSetFace (required).
type ObstacleUpdate struct {
	Op   ObstacleOp
	ID   string
	X, Y int
	Face *Direction
}

// PathSequence is a full planned path, from a JSON pose array.
type PathSequence struct {
	Poses []Pose
}

// PathStep is a single step of a path in progress.
type PathStep struct {
	Pose Pose
}

// PathComplete signals the robot finished its path. Flows both ways.
type PathComplete struct{}

// PathAbort signals the path was abandoned. Flows both ways.
type PathAbort struct{}

// SyncRequest asks the other side to resend the full arena state.
type SyncRequest struct{}

// Raw is the opaque fallback: a line matching no structured format,
// carried verbatim (modulo outer whitespace trim).
type Raw struct {
	Text string
}

func (RobotUpdate) isIncoming()    {}
func (TargetFound) isIncoming()    {}
func (StatusUpdate) isIncoming()   {}
func (GridHex) isIncoming()        {}
func (GridBits) isIncoming()       {}
func (ArenaResize) isIncoming()    {}
func (ObstacleUpdate) isIncoming() {}
func (PathSequence) isIncoming()   {}
func (PathStep) isIncoming()       {}
func (PathComplete) isIncoming()   {}
func (PathAbort) isIncoming()      {}
func (SyncRequest) isIncoming()    {}
func (Raw) isIncoming()            {}

// MoveKind selects one of the short movement commands. The wire tokens are
// configurable per deployment via Vocabulary.
type MoveKind int

const (
	MoveForward MoveKind = iota
	MoveReverse
	MoveTurnLeft
	MoveTurnRight
	MoveStop
)

// Move is a movement/turn command to the robot.
type Move struct {
	Kind MoveKind
}

// AddObstacle places an obstacle at a cell.
type AddObstacle struct {
	ID   string
	X, Y int
}

// RemoveObstacle deletes an obstacle by id.
type RemoveObstacle struct {
	ID string
}

// SetObstacleFace sets which side of an obstacle carries the target image.
type SetObstacleFace struct {
	ID   string
	Face Direction
}

// RobotPosition announces our robot pose to the peer.
type RobotPosition struct {
	X, Y int
	Dir  Direction
}

// TargetReport announces a recognized target to the peer.
type TargetReport struct {
	ObstacleID string
	TargetID   string
	Face       *Direction
}

// Status sends free-form status text.
type Status struct {
	Text string
}

// RequestSync asks the peer to resend the full arena state.
type RequestSync struct{}

// RawCommand passes arbitrary text through the encoder trimmed but
// otherwise verbatim.
type RawCommand struct {
	Text string
}

func (Move) isOutgoing()            {}
func (AddObstacle) isOutgoing()     {}
func (RemoveObstacle) isOutgoing()  {}
func (SetObstacleFace) isOutgoing() {}
func (RobotPosition) isOutgoing()   {}
func (TargetReport) isOutgoing()    {}
func (Status) isOutgoing()          {}
func (RequestSync) isOutgoing()     {}
func (PathComplete) isOutgoing()    {}
func (PathAbort) isOutgoing()       {}
func (RawCommand) isOutgoing()      {}
