// Package teetime holds the roster rules for a tee time: who is confirmed,
// who is waiting, and what status the slot is in.
package teetime

import (
	"errors"
	"slices"
	"time"

	"teetime-api/internal/model"
)

type Status string

const (
	Past     Status = "past"
	Full     Status = "full"
	Waitlist Status = "waitlist"
	Open     Status = "open"
)

var (
	ErrAlreadyJoined = errors.New("already joined this tee time")
	ErrNotJoined     = errors.New("not part of this tee time")
	ErrPast          = errors.New("tee time has already started")
)

// Roster is the ordered confirmed list and waitlist of one tee time.
type Roster struct {
	Confirmed []string
	Waitlist  []string
}

func RosterOf(tt *model.TeeTime) Roster {
	return Roster{Confirmed: slices.Clone(tt.Confirmed), Waitlist: slices.Clone(tt.Waitlist)}
}

// Apply writes r back onto tt.
func (r Roster) Apply(tt *model.TeeTime) {
	tt.Confirmed = nonNil(r.Confirmed)
	tt.Waitlist = nonNil(r.Waitlist)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// StatusAt derives the status from the inputs alone.
func StatusAt(dateTime time.Time, playerLimit int, r Roster, now time.Time) Status {
	if !dateTime.After(now) {
		return Past
	}
	if len(r.Confirmed) >= playerLimit {
		return Full
	}
	if len(r.Waitlist) > 0 {
		return Waitlist
	}
	return Open
}

func StatusOf(tt *model.TeeTime, now time.Time) Status {
	return StatusAt(tt.DateTime, tt.PlayerLimit, RosterOf(tt), now)
}

func (r Roster) Contains(userID string) bool {
	return slices.Contains(r.Confirmed, userID) || slices.Contains(r.Waitlist, userID)
}

func CanJoin(tt *model.TeeTime, userID string, now time.Time) bool {
	return StatusOf(tt, now) != Past && !RosterOf(tt).Contains(userID)
}

func CanLeave(tt *model.TeeTime, userID string, now time.Time) bool {
	return StatusOf(tt, now) != Past && RosterOf(tt).Contains(userID)
}

// Join appends userID to the confirmed list while there is room, otherwise
// to the end of the waitlist.
func (r *Roster) Join(userID string, playerLimit int) (model.ParticipantState, error) {
	if r.Contains(userID) {
		return "", ErrAlreadyJoined
	}
	if len(r.Confirmed) < playerLimit {
		r.Confirmed = append(r.Confirmed, userID)
		return model.Confirmed, nil
	}
	r.Waitlist = append(r.Waitlist, userID)
	return model.Waitlisted, nil
}

// Departure describes the outcome of Leave.
type Departure struct {
	From     model.ParticipantState
	Promoted string // user moved from the waitlist into the freed slot, if any
}

// Leave removes userID from whichever list holds it. With promote set, a
// freed confirmed slot goes to the head of the waitlist.
func (r *Roster) Leave(userID string, playerLimit int, promote bool) (Departure, error) {
	if i := slices.Index(r.Confirmed, userID); i >= 0 {
		r.Confirmed = slices.Delete(r.Confirmed, i, i+1)
		d := Departure{From: model.Confirmed}
		if promote && len(r.Waitlist) > 0 && len(r.Confirmed) < playerLimit {
			d.Promoted = r.Waitlist[0]
			r.Waitlist = slices.Delete(r.Waitlist, 0, 1)
			r.Confirmed = append(r.Confirmed, d.Promoted)
		}
		return d, nil
	}
	if i := slices.Index(r.Waitlist, userID); i >= 0 {
		r.Waitlist = slices.Delete(r.Waitlist, i, i+1)
		return Departure{From: model.Waitlisted}, nil
	}
	return Departure{}, ErrNotJoined
}

// Fill moves players from the head of the waitlist into free confirmed
// slots and returns who moved.
func (r *Roster) Fill(playerLimit int) []string {
	var moved []string
	for len(r.Waitlist) > 0 && len(r.Confirmed) < playerLimit {
		moved = append(moved, r.Waitlist[0])
		r.Confirmed = append(r.Confirmed, r.Waitlist[0])
		r.Waitlist = slices.Delete(r.Waitlist, 0, 1)
	}
	return moved
}

// Participants flattens r into storage rows.
func (r Roster) Participants(teeTimeID string) []model.Participant {
	out := make([]model.Participant, 0, len(r.Confirmed)+len(r.Waitlist))
	for i, id := range r.Confirmed {
		out = append(out, model.Participant{TeeTimeID: teeTimeID, UserID: id, State: model.Confirmed, Position: i})
	}
	for i, id := range r.Waitlist {
		out = append(out, model.Participant{TeeTimeID: teeTimeID, UserID: id, State: model.Waitlisted, Position: i})
	}
	return out
}

// FromParticipants rebuilds a roster from rows in any order.
func FromParticipants(ps []model.Participant) Roster {
	sorted := slices.Clone(ps)
	slices.SortStableFunc(sorted, func(a, b model.Participant) int { return a.Position - b.Position })
	r := Roster{Confirmed: []string{}, Waitlist: []string{}}
	for _, p := range sorted {
		switch p.State {
		case model.Confirmed:
			r.Confirmed = append(r.Confirmed, p.UserID)
		case model.Waitlisted:
			r.Waitlist = append(r.Waitlist, p.UserID)
		}
	}
	return r
}
