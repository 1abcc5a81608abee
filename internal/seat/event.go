package seat

import (
    "time"

    "github.com/iliyamo/seat-tracker/internal/model"
)

// Action names a kind of seat event.  The values appear in published
// seat events and logs.
type Action string

const (
    ActionLogin    Action = "login"
    ActionLogout   Action = "logout"
    ActionBreak    Action = "break"
    ActionEndBreak Action = "end_break"
    ActionSensor   Action = "sensor"
    ActionExpire   Action = "expire"
    ActionReset    Action = "reset"
)

// Source is the channel an event arrived on.
type Source string

const (
    SourceHuman  Source = "human"
    SourceSensor Source = "sensor"
    SourceTimer  Source = "timer"
    SourceAdmin  Source = "admin"
)

// Event is one input to the state machine.
type Event struct {
    Action   Action
    User     string        // login only
    Duration time.Duration // break only
    Observed model.State   // sensor only
}

func Login(user string) Event { return Event{Action: ActionLogin, User: user} }
func Logout() Event { return Event{Action: ActionLogout} }
func StartBreak(d time.Duration) Event { return Event{Action: ActionBreak, Duration: d} }
func EndBreak() Event { return Event{Action: ActionEndBreak} }
func Sensor(observed model.State) Event { return Event{Action: ActionSensor, Observed: observed} }
func Expire() Event { return Event{Action: ActionExpire} }

// Source reports which channel produces this kind of event.
func (e Event) Source() Source {
    switch e.Action {
    case ActionSensor:
        return SourceSensor
    case ActionExpire:
        return SourceTimer
    case ActionReset:
        return SourceAdmin
    }
    return SourceHuman
}
