package database

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"gatedrop-bot/internal/models"
)

// Timestamps are stored as RFC 3339 strings with nanoseconds so they round-trip exactly.
const timeLayout = time.RFC3339Nano

const (
	usersDocID = "users"
	dataDocID  = "data"
	miscDocID  = "misc"
)

type subscriptionDoc struct {
	Purchased       string `bson:"purchased"`
	Expiry          string `bson:"expiry"`
	ExpiredNotified bool   `bson:"expired_notified"`
	Plan            string `bson:"plan"`
	Upgraded        bool   `bson:"upgraded"`
}

type usersDoc struct {
	ID            string                     `bson:"_id"`
	Subscriptions map[string]subscriptionDoc `bson:"subscriptions"`
	AllUsers      []int64                    `bson:"all_users"`
}

type usageDoc struct {
	Date  string   `bson:"date"`
	Links []string `bson:"links"`
}

type linkDoc struct {
	Start    int                  `bson:"start"`
	End      int                  `bson:"end"`
	Created  string               `bson:"created"`
	URLs     []string             `bson:"urls"`
	Messages []models.ContentItem `bson:"messages"`
}

type dailyUsersDoc struct {
	Date  string  `bson:"date"`
	Users []int64 `bson:"users"`
}

type dataDoc struct {
	ID                string              `bson:"_id"`
	UserUsage         map[string]usageDoc `bson:"user_usage"`
	Website           string              `bson:"website"`
	ParamLinks        map[string]linkDoc  `bson:"param_links"`
	LinkOrder         []string            `bson:"link_order"`
	DailyRedemptions  map[string]int      `bson:"daily_redemptions"`
	DailyUsers        dailyUsersDoc       `bson:"daily_users"`
	PausedAt          string              `bson:"paused_at,omitempty"`
	AutoDeleteSeconds int64               `bson:"auto_delete_seconds"`
}

type pendingDoc struct {
	ChatID    int64  `bson:"chat_id"`
	MessageID int    `bson:"message_id"`
	DeleteAt  string `bson:"delete_at"`
}

type miscDoc struct {
	ID             string       `bson:"_id"`
	PendingDeletes []pendingDoc `bson:"pending_deletes"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func nonEmpty[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return s
}

// encodeSnapshot splits a snapshot into the three stored documents.
func encodeSnapshot(snap *models.Snapshot) (*usersDoc, *dataDoc, *miscDoc) {
	users := &usersDoc{
		ID:            usersDocID,
		Subscriptions: make(map[string]subscriptionDoc, len(snap.Subscriptions)),
		AllUsers:      sortedIDs(snap.AllUsers),
	}
	for uid, sub := range snap.Subscriptions {
		users.Subscriptions[strconv.FormatInt(uid, 10)] = subscriptionDoc{
			Purchased:       formatTime(sub.PurchasedAt),
			Expiry:          formatTime(sub.ExpiresAt),
			ExpiredNotified: sub.ExpiredNotified,
			Plan:            string(sub.Plan),
			Upgraded:        sub.Upgraded,
		}
	}

	data := &dataDoc{
		ID:               dataDocID,
		UserUsage:        make(map[string]usageDoc, len(snap.Usage)),
		Website:          snap.BaseURL,
		ParamLinks:       make(map[string]linkDoc, len(snap.Links)),
		LinkOrder:        append([]string(nil), snap.LinkOrder...),
		DailyRedemptions: make(map[string]int, len(snap.DailyRedemptions)),
		DailyUsers: dailyUsersDoc{
			Date:  snap.ActiveUsers.Date,
			Users: sortedIDs(snap.ActiveUsers.Users),
		},
		AutoDeleteSeconds: int64(snap.AutoDeleteAfter / time.Second),
	}
	for uid, usage := range snap.Usage {
		data.UserUsage[strconv.FormatInt(uid, 10)] = usageDoc{
			Date:  usage.Date,
			Links: append([]string(nil), usage.Tokens...),
		}
	}
	for token, link := range snap.Links {
		data.ParamLinks[token] = linkDoc{
			Start:    link.RangeStart,
			End:      link.RangeEnd,
			Created:  formatTime(link.CreatedAt),
			URLs:     append([]string(nil), link.URLs...),
			Messages: append([]models.ContentItem(nil), link.Items...),
		}
	}
	for day, n := range snap.DailyRedemptions {
		data.DailyRedemptions[day] = n
	}
	if snap.PausedAt != nil {
		data.PausedAt = formatTime(*snap.PausedAt)
	}

	misc := &miscDoc{
		ID:             miscDocID,
		PendingDeletes: make([]pendingDoc, 0, len(snap.Pending)),
	}
	for _, ob := range snap.Pending {
		misc.PendingDeletes = append(misc.PendingDeletes, pendingDoc{
			ChatID:    ob.ChatID,
			MessageID: ob.MessageID,
			DeleteAt:  formatTime(ob.DeleteAt),
		})
	}
	return users, data, misc
}

// decodeSnapshot rebuilds a snapshot from the stored documents. Any document may
// be nil. Entries that fail to parse are logged and skipped.
func decodeSnapshot(users *usersDoc, data *dataDoc, misc *miscDoc, log *slog.Logger) *models.Snapshot {
	snap := models.NewSnapshot("", 0)

	if users != nil {
		for key, doc := range users.Subscriptions {
			sub, err := decodeSubscription(key, doc)
			if err != nil {
				log.Error("skipping stored subscription", "user_id", key, "error", err)
				continue
			}
			snap.Subscriptions[sub.UserID] = sub
		}
		for _, id := range users.AllUsers {
			snap.AllUsers[id] = struct{}{}
		}
	}

	if data != nil {
		snap.BaseURL = data.Website
		snap.AutoDeleteAfter = time.Duration(data.AutoDeleteSeconds) * time.Second
		for key, doc := range data.UserUsage {
			uid, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				log.Error("skipping stored usage", "user_id", key, "error", err)
				continue
			}
			snap.Usage[uid] = models.UserUsage{UserID: uid, Date: doc.Date, Tokens: nonEmpty(doc.Links)}
		}
		for token, doc := range data.ParamLinks {
			created, err := parseTime(doc.Created)
			if err != nil {
				log.Warn("stored link has invalid creation time", "token", token, "error", err)
			}
			snap.Links[token] = models.BatchLink{
				Token:      token,
				RangeStart: doc.Start,
				RangeEnd:   doc.End,
				CreatedAt:  created,
				URLs:       nonEmpty(doc.URLs),
				Items:      nonEmpty(doc.Messages),
			}
		}
		snap.LinkOrder = linkOrder(data.LinkOrder, snap.Links)
		for day, n := range data.DailyRedemptions {
			snap.DailyRedemptions[day] = n
		}
		snap.ActiveUsers.Date = data.DailyUsers.Date
		for _, id := range data.DailyUsers.Users {
			snap.ActiveUsers.Users[id] = struct{}{}
		}
		if data.PausedAt != "" {
			if pausedAt, err := parseTime(data.PausedAt); err != nil {
				log.Error("stored pause start is invalid, ignoring", "error", err)
			} else {
				snap.PausedAt = &pausedAt
			}
		}
	}

	if misc != nil {
		for _, doc := range misc.PendingDeletes {
			deleteAt, err := parseTime(doc.DeleteAt)
			if err != nil {
				// Keep the obligation; an unparsable deadline is treated as past due.
				log.Warn("pending deletion has invalid deadline", "chat_id", doc.ChatID, "message_id", doc.MessageID, "error", err)
			}
			snap.Pending = append(snap.Pending, models.DeletionObligation{
				ChatID:    doc.ChatID,
				MessageID: doc.MessageID,
				DeleteAt:  deleteAt,
			})
		}
	}
	return snap
}

func decodeSubscription(key string, doc subscriptionDoc) (models.Subscription, error) {
	uid, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return models.Subscription{}, fmt.Errorf("invalid user id: %w", err)
	}
	purchased, err := parseTime(doc.Purchased)
	if err != nil {
		return models.Subscription{}, fmt.Errorf("invalid purchase time: %w", err)
	}
	expiry, err := parseTime(doc.Expiry)
	if err != nil {
		return models.Subscription{}, fmt.Errorf("invalid expiry time: %w", err)
	}
	plan := models.Plan(doc.Plan)
	if plan != models.PlanLimited {
		plan = models.PlanFull
	}
	return models.Subscription{
		UserID:          uid,
		PurchasedAt:     purchased,
		ExpiresAt:       expiry,
		Plan:            plan,
		ExpiredNotified: doc.ExpiredNotified,
		Upgraded:        doc.Upgraded,
	}, nil
}

// linkOrder keeps the stored order for known tokens and appends any link missing
// from it by creation time.
func linkOrder(stored []string, links map[string]models.BatchLink) []string {
	order := make([]string, 0, len(links))
	seen := make(map[string]bool, len(links))
	for _, token := range stored {
		if _, ok := links[token]; ok && !seen[token] {
			order = append(order, token)
			seen[token] = true
		}
	}
	var missing []string
	for token := range links {
		if !seen[token] {
			missing = append(missing, token)
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		a, b := links[missing[i]], links[missing[j]]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return missing[i] < missing[j]
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return nonEmpty(append(order, missing...))
}
