package wire

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Decode maps one wire line to an Incoming message. Formats are attempted
// in a fixed order — JSON object, JSON array, delimited command, legacy
// grid — and the first match wins. A field that fails to parse abandons
// that attempt so a later format gets a chance. Decode never fails: a line
// matching nothing comes back as Raw with the trimmed text preserved.
func Decode(line string) Incoming {
	line = strings.TrimSpace(line)

	if m, ok := decodeJSONObject(line); ok {
		return m
	}
	if m, ok := decodeJSONArray(line); ok {
		return m
	}
	if m, ok := decodeDelimited(line); ok {
		return m
	}
	if m, ok := decodeLegacyGrid(line); ok {
		return m
	}
	return Raw{Text: line}
}

// ------------------------------------------------------------
// JSON object
// ------------------------------------------------------------

// decodeJSONObject handles lines that parse as a JSON object. If a "type"
// discriminator is present it selects the message; otherwise the type is
// inferred from which fields are present, in a fixed order:
// robotPosition, grid, x+y+direction-like, target/obstacle*,
// message/status. A valid object matching none of the heuristics is
// returned as Raw — it already consumed the JSON attempt.
func decodeJSONObject(line string) (Incoming, bool) {
	if !strings.HasPrefix(line, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return nil, false
	}

	if t, ok := stringField(obj, "type"); ok {
		if m, ok := decodeTypedObject(strings.ToUpper(strings.TrimSpace(t)), obj); ok {
			return m, true
		}
	}

	// content-based inference, fixed attempt order
	if v, ok := obj["robotPosition"]; ok {
		if m, ok := poseFromValue(v); ok {
			return RobotUpdate{X: m.X, Y: m.Y, Dir: m.Dir}, true
		}
		return Raw{Text: line}, true
	}
	if v, ok := obj["grid"]; ok {
		if m, ok := gridFromValue(v, obj); ok {
			return m, true
		}
		return Raw{Text: line}, true
	}
	if x, okX := intField(obj, "x"); okX {
		if y, okY := intField(obj, "y"); okY {
			if dir, okD := dirField(obj, "direction", "dir", "d"); okD {
				return RobotUpdate{X: x, Y: y, Dir: dir}, true
			}
		}
	}
	if target, ok := stringField(obj, "target", "targetId", "target_id"); ok {
		obstacle, _ := stringField(obj, "obstacle", "obstacleId", "obstacle_id", "id")
		msg := TargetFound{ObstacleID: obstacle, TargetID: target}
		if face, ok := dirField(obj, "face"); ok {
			msg.Face = &face
		}
		return msg, true
	}
	if id, ok := stringField(obj, "obstacle", "obstacleId", "obstacle_id"); ok {
		x, okX := intField(obj, "x")
		y, okY := intField(obj, "y")
		if okX && okY {
			msg := ObstacleUpdate{Op: ObstacleAdd, ID: id, X: x, Y: y}
			if face, ok := dirField(obj, "face"); ok {
				msg.Face = &face
			}
			return msg, true
		}
		if face, ok := dirField(obj, "face"); ok {
			return ObstacleUpdate{Op: ObstacleSetFace, ID: id, Face: &face}, true
		}
	}
	if text, ok := stringField(obj, "message", "status"); ok {
		return StatusUpdate{Text: text}, true
	}

	// a JSON object the heuristics cannot place — opaque passthrough
	return Raw{Text: line}, true
}

// decodeTypedObject selects by the explicit discriminator. Values mirror
// the delimited command names, case-insensitively.
func decodeTypedObject(t string, obj map[string]any) (Incoming, bool) {
	switch t {
	case "ROBOT":
		x, okX := intField(obj, "x")
		y, okY := intField(obj, "y")
		dir, okD := dirField(obj, "direction", "dir", "d")
		if okX && okY && okD {
			return RobotUpdate{X: x, Y: y, Dir: dir}, true
		}
	case "TARGET":
		target, okT := stringField(obj, "target", "targetId", "target_id")
		obstacle, _ := stringField(obj, "obstacle", "obstacleId", "obstacle_id", "id")
		if okT {
			msg := TargetFound{ObstacleID: obstacle, TargetID: target}
			if face, ok := dirField(obj, "face"); ok {
				msg.Face = &face
			}
			return msg, true
		}
	case "ADD":
		id, okID := stringField(obj, "id", "obstacle", "obstacleId", "obstacle_id")
		x, okX := intField(obj, "x")
		y, okY := intField(obj, "y")
		if okID && okX && okY {
			msg := ObstacleUpdate{Op: ObstacleAdd, ID: id, X: x, Y: y}
			if face, ok := dirField(obj, "face"); ok {
				msg.Face = &face
			}
			return msg, true
		}
	case "SUB":
		if id, ok := stringField(obj, "id", "obstacle", "obstacleId", "obstacle_id"); ok {
			return ObstacleUpdate{Op: ObstacleRemove, ID: id}, true
		}
	case "FACE":
		id, okID := stringField(obj, "id", "obstacle", "obstacleId", "obstacle_id")
		face, okF := dirField(obj, "face", "direction", "dir", "d")
		if okID && okF {
			return ObstacleUpdate{Op: ObstacleSetFace, ID: id, Face: &face}, true
		}
	case "STATUS", "MSG":
		if text, ok := stringField(obj, "message", "status", "text"); ok {
			return StatusUpdate{Text: text}, true
		}
	case "GRID":
		if v, ok := obj["grid"]; ok {
			return gridFromValue(v, obj)
		}
	case "ARENA":
		w, okW := intField(obj, "width", "w")
		h, okH := intField(obj, "height", "h")
		if okW && okH {
			return ArenaResize{Width: w, Height: h}, true
		}
	case "PATH":
		if v, ok := obj["path"]; ok {
			if poses, ok := posesFromValue(v); ok {
				return PathSequence{Poses: poses}, true
			}
		}
		if v, ok := obj["poses"]; ok {
			if poses, ok := posesFromValue(v); ok {
				return PathSequence{Poses: poses}, true
			}
		}
	case "STEP", "PATH_STEP", "PATHSTEP":
		x, okX := intField(obj, "x")
		y, okY := intField(obj, "y")
		dir, okD := dirField(obj, "direction", "dir", "d")
		if okX && okY && okD {
			return PathStep{Pose: Pose{X: x, Y: y, Dir: dir}}, true
		}
	case "PATH_COMPLETE", "PATHCOMPLETE":
		return PathComplete{}, true
	case "PATH_ABORT", "PATHABORT":
		return PathAbort{}, true
	case "REQUEST_SYNC", "SYNC", "SEND_ARENA":
		return SyncRequest{}, true
	}
	return nil, false
}

// ------------------------------------------------------------
// JSON array
// ------------------------------------------------------------

// decodeJSONArray treats a JSON array of {x, y, direction|dir|d} objects
// as a pose sequence. A malformed element abandons the attempt.
func decodeJSONArray(line string) (Incoming, bool) {
	if !strings.HasPrefix(line, "[") {
		return nil, false
	}
	var arr []any
	if err := json.Unmarshal([]byte(line), &arr); err != nil {
		return nil, false
	}
	poses, ok := posesFromValue(arr)
	if !ok {
		return nil, false
	}
	return PathSequence{Poses: poses}, true
}

// ------------------------------------------------------------
// Delimited commands
// ------------------------------------------------------------

// decodeDelimited parses the compact comma-delimited command format.
// The first token, uppercased, selects the command. Numeric fields parse
// leniently; coordinate pairs tolerate optional parentheses.
func decodeDelimited(line string) (Incoming, bool) {
	parts := strings.Split(line, ",")
	cmd := strings.ToUpper(strings.TrimSpace(parts[0]))

	switch cmd {
	case "ROBOT":
		if len(parts) < 4 {
			return nil, false
		}
		x, okX := lenientInt(parts[1])
		y, okY := lenientInt(parts[2])
		dir, okD := ParseDirection(parts[3])
		if okX && okY && okD {
			return RobotUpdate{X: x, Y: y, Dir: dir}, true
		}
	case "TARGET":
		if len(parts) < 3 {
			return nil, false
		}
		msg := TargetFound{
			ObstacleID: strings.TrimSpace(parts[1]),
			TargetID:   strings.TrimSpace(parts[2]),
		}
		if len(parts) >= 4 && strings.TrimSpace(parts[3]) != "" {
			face, ok := ParseDirection(parts[3])
			if !ok {
				return nil, false
			}
			msg.Face = &face
		}
		return msg, true
	case "ADD":
		if len(parts) < 3 {
			return nil, false
		}
		x, y, ok := coordPair(strings.Join(parts[2:], ","))
		if !ok {
			return nil, false
		}
		return ObstacleUpdate{
			Op: ObstacleAdd,
			ID: strings.TrimSpace(parts[1]),
			X:  x,
			Y:  y,
		}, true
	case "SUB":
		if len(parts) < 2 {
			return nil, false
		}
		return ObstacleUpdate{Op: ObstacleRemove, ID: strings.TrimSpace(parts[1])}, true
	case "FACE":
		if len(parts) < 3 {
			return nil, false
		}
		face, ok := ParseDirection(parts[2])
		if !ok {
			return nil, false
		}
		return ObstacleUpdate{
			Op:   ObstacleSetFace,
			ID:   strings.TrimSpace(parts[1]),
			Face: &face,
		}, true
	case "STATUS":
		// text may itself contain commas
		return StatusUpdate{Text: strings.TrimSpace(strings.Join(parts[1:], ","))}, true
	case "MSG":
		text := strings.TrimSpace(strings.Join(parts[1:], ","))
		text = strings.TrimPrefix(text, "[")
		text = strings.TrimSuffix(text, "]")
		return StatusUpdate{Text: strings.TrimSpace(text)}, true
	case "PATH_COMPLETE", "PATHCOMPLETE":
		return PathComplete{}, true
	case "PATH_ABORT", "PATHABORT":
		return PathAbort{}, true
	case "REQUEST_SYNC", "SYNC", "SEND_ARENA":
		return SyncRequest{}, true
	}
	return nil, false
}

// ------------------------------------------------------------
// Legacy grid
// ------------------------------------------------------------

// maxGridDim bounds legacy grid header dimensions. Real arenas are a few
// dozen cells per side; a header past this is garbage, not a grid, and
// must not size an allocation.
const maxGridDim = 1024

// decodeLegacyGrid parses the whitespace format
//
//	GRID <height> <width> <robotX> <robotY> <robotDir> <cell0> <cell1> ...
//
// The header is height-then-width; cells are consumed row-major up to
// exactly width*height. Extra cells are truncated, missing cells default
// to unoccupied. Nonzero cell values mean occupied.
func decodeLegacyGrid(line string) (Incoming, bool) {
	fields := strings.Fields(line)
	if len(fields) < 6 || !strings.EqualFold(fields[0], "GRID") {
		return nil, false
	}
	h, okH := lenientInt(fields[1])
	w, okW := lenientInt(fields[2])
	rx, okX := lenientInt(fields[3])
	ry, okY := lenientInt(fields[4])
	dir, okD := ParseDirection(fields[5])
	if !okH || !okW || !okX || !okY || !okD || h < 0 || w < 0 {
		return nil, false
	}
	if h > maxGridDim || w > maxGridDim {
		return nil, false
	}

	cells := make([]bool, w*h)
	raw := fields[6:]
	for i := range cells {
		if i >= len(raw) {
			break // missing cells stay false
		}
		v, ok := lenientInt(raw[i])
		if !ok {
			return nil, false
		}
		cells[i] = v != 0
	}

	return GridBits{
		Width:    w,
		Height:   h,
		RobotX:   rx,
		RobotY:   ry,
		RobotDir: dir,
		Cells:    cells,
	}, true
}

// ------------------------------------------------------------
// Field helpers
// ------------------------------------------------------------

var intPattern = regexp.MustCompile(`-?\d+`)

// coordPair extracts two integers from a permissive "(x,y)" fragment —
// parentheses and inner whitespace optional.
func coordPair(s string) (int, int, bool) {
	nums := intPattern.FindAllString(s, 2)
	if len(nums) < 2 {
		return 0, 0, false
	}
	x, errX := strconv.Atoi(nums[0])
	y, errY := strconv.Atoi(nums[1])
	if errX != nil || errY != nil {
		return 0, 0, false
	}
	return x, y, true
}

// lenientInt parses an integer, tolerating surrounding whitespace and
// float-formatted values.
func lenientInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(math.Round(f)), true
	}
	return 0, false
}

// stringField returns the first present key as a string. Numeric values
// are accepted and formatted — ids sometimes arrive as JSON numbers.
func stringField(obj map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			return val, true
		case float64:
			if val == math.Trunc(val) {
				return strconv.FormatInt(int64(val), 10), true
			}
			return strconv.FormatFloat(val, 'f', -1, 64), true
		}
	}
	return "", false
}

// intField returns the first present key as an int, accepting JSON numbers
// and numeric strings.
func intField(obj map[string]any, keys ...string) (int, bool) {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case float64:
			return int(math.Round(val)), true
		case string:
			return lenientInt(val)
		}
	}
	return 0, false
}

// dirField returns the first present key as a Direction, accepting letter
// codes, full names, and degree values (string or number).
func dirField(obj map[string]any, keys ...string) (Direction, bool) {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			return ParseDirection(val)
		case float64:
			return QuantizeDegrees(val), true
		}
	}
	return North, false
}

// poseFromValue builds a Pose from either [x, y, dir] or {x, y, dir}.
func poseFromValue(v any) (Pose, bool) {
	switch val := v.(type) {
	case []any:
		if len(val) < 2 {
			return Pose{}, false
		}
		x, okX := numToInt(val[0])
		y, okY := numToInt(val[1])
		if !okX || !okY {
			return Pose{}, false
		}
		pose := Pose{X: x, Y: y}
		if len(val) >= 3 {
			dir, ok := anyToDirection(val[2])
			if !ok {
				return Pose{}, false
			}
			pose.Dir = dir
		}
		return pose, true
	case map[string]any:
		x, okX := intField(val, "x")
		y, okY := intField(val, "y")
		if !okX || !okY {
			return Pose{}, false
		}
		pose := Pose{X: x, Y: y}
		if dir, ok := dirField(val, "direction", "dir", "d"); ok {
			pose.Dir = dir
		}
		return pose, true
	}
	return Pose{}, false
}

// posesFromValue converts a JSON array value into a pose list.
func posesFromValue(v any) ([]Pose, bool) {
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	poses := make([]Pose, 0, len(arr))
	for _, el := range arr {
		pose, ok := poseFromValue(el)
		if !ok {
			return nil, false
		}
		poses = append(poses, pose)
	}
	return poses, true
}

// gridFromValue interprets the value of a "grid" field: a string is a
// hex-packed snapshot, an array is explicit cells with dimensions pulled
// from sibling fields when present.
func gridFromValue(v any, obj map[string]any) (Incoming, bool) {
	switch val := v.(type) {
	case string:
		return GridHex{Hex: strings.TrimSpace(val)}, true
	case []any:
		cells := make([]bool, 0, len(val))
		for _, c := range val {
			switch cv := c.(type) {
			case bool:
				cells = append(cells, cv)
			case float64:
				cells = append(cells, cv != 0)
			default:
				return nil, false
			}
		}
		msg := GridBits{Cells: cells}
		msg.Width, _ = intField(obj, "width", "w")
		msg.Height, _ = intField(obj, "height", "h")
		msg.RobotX, _ = intField(obj, "robotX", "rx")
		msg.RobotY, _ = intField(obj, "robotY", "ry")
		if dir, ok := dirField(obj, "robotDir", "robotDirection"); ok {
			msg.RobotDir = dir
		}
		return msg, true
	}
	return nil, false
}

// numToInt converts a raw JSON value to an int.
func numToInt(v any) (int, bool) {
	switch val := v.(type) {
	case float64:
		return int(math.Round(val)), true
	case string:
		return lenientInt(val)
	}
	return 0, false
}

// anyToDirection converts a raw JSON value to a Direction.
func anyToDirection(v any) (Direction, bool) {
	switch val := v.(type) {
	case string:
		return ParseDirection(val)
	case float64:
		return QuantizeDegrees(val), true
	}
	return North, false
}
