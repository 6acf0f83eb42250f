package models

import "time"

// Snapshot is the whole persisted domain state of the bot.
type Snapshot struct {
	Subscriptions map[int64]Subscription
	AllUsers      map[int64]struct{}
	Usage         map[int64]UserUsage
	BaseURL       string
	Links         map[string]BatchLink
	// LinkOrder lists link tokens in creation order.
	LinkOrder        []string
	DailyRedemptions map[string]int
	ActiveUsers      DailyUsers
	Pending          []DeletionObligation
	// PausedAt is set while the subscription countdown is frozen.
	PausedAt        *time.Time
	AutoDeleteAfter time.Duration
}

// NewSnapshot returns an empty snapshot with all maps allocated.
func NewSnapshot(baseURL string, autoDelete time.Duration) *Snapshot {
	return &Snapshot{
		Subscriptions:    make(map[int64]Subscription),
		AllUsers:         make(map[int64]struct{}),
		Usage:            make(map[int64]UserUsage),
		BaseURL:          baseURL,
		Links:            make(map[string]BatchLink),
		DailyRedemptions: make(map[string]int),
		ActiveUsers:      DailyUsers{Users: make(map[int64]struct{})},
		AutoDeleteAfter:  autoDelete,
	}
}

// Normalize allocates any nil maps so a decoded snapshot is safe to mutate.
func (s *Snapshot) Normalize() {
	if s.Subscriptions == nil {
		s.Subscriptions = make(map[int64]Subscription)
	}
	if s.AllUsers == nil {
		s.AllUsers = make(map[int64]struct{})
	}
	if s.Usage == nil {
		s.Usage = make(map[int64]UserUsage)
	}
	if s.Links == nil {
		s.Links = make(map[string]BatchLink)
	}
	if s.DailyRedemptions == nil {
		s.DailyRedemptions = make(map[string]int)
	}
	if s.ActiveUsers.Users == nil {
		s.ActiveUsers.Users = make(map[int64]struct{})
	}
}

// Clone returns a deep copy that shares no mutable memory with s.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Subscriptions:    make(map[int64]Subscription, len(s.Subscriptions)),
		AllUsers:         make(map[int64]struct{}, len(s.AllUsers)),
		Usage:            make(map[int64]UserUsage, len(s.Usage)),
		BaseURL:          s.BaseURL,
		Links:            make(map[string]BatchLink, len(s.Links)),
		LinkOrder:        append([]string(nil), s.LinkOrder...),
		DailyRedemptions: make(map[string]int, len(s.DailyRedemptions)),
		ActiveUsers: DailyUsers{
			Date:  s.ActiveUsers.Date,
			Users: make(map[int64]struct{}, len(s.ActiveUsers.Users)),
		},
		Pending:         append([]DeletionObligation(nil), s.Pending...),
		AutoDeleteAfter: s.AutoDeleteAfter,
	}
	for k, v := range s.Subscriptions {
		out.Subscriptions[k] = v
	}
	for k := range s.AllUsers {
		out.AllUsers[k] = struct{}{}
	}
	for k, v := range s.Usage {
		v.Tokens = append([]string(nil), v.Tokens...)
		out.Usage[k] = v
	}
	for k, v := range s.Links {
		out.Links[k] = v.Clone()
	}
	for k, v := range s.DailyRedemptions {
		out.DailyRedemptions[k] = v
	}
	for k := range s.ActiveUsers.Users {
		out.ActiveUsers.Users[k] = struct{}{}
	}
	if s.PausedAt != nil {
		p := *s.PausedAt
		out.PausedAt = &p
	}
	return out
}
