package seat

import (
    "strings"

    "github.com/iliyamo/seat-tracker/internal/model"
)

// sensorColors maps the colors reported by occupancy sensors to states.
var sensorColors = map[string]model.State{
    "green":  model.StateVacant,
    "red":    model.StateOccupied,
    "yellow": model.StateBreak,
    "orange": model.StateBreak,
    "blue":   model.StateBreak,
}

// ParseObserved converts a sensor payload (a color or a state name) into
// the observed state.  Matching is case-insensitive.
func ParseObserved(raw string) (model.State, error) {
    v := strings.ToLower(strings.TrimSpace(raw))
    if st, ok := sensorColors[v]; ok {
        return st, nil
    }
    switch v {
    case "vacant", "free", "empty":
        return model.StateVacant, nil
    case "occupied":
        return model.StateOccupied, nil
    case "break", "onbreak", "on_break":
        return model.StateBreak, nil
    }
    return "", ErrInvalidSensorState
}
