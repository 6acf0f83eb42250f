// Package export renders the bot's records as CSV documents.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gatedrop-bot/internal/models"
)

const timeLayout = "2006-01-02 15:04:05"

// File is one named CSV document.
type File struct {
	Name string
	Data []byte
}

// All renders subscriptions, batch links and usage from snap, in that order.
func All(snap *models.Snapshot) ([]File, error) {
	renderers := []struct {
		name   string
		header []string
		rows   func(*models.Snapshot) [][]string
	}{
		{"subscriptions.csv", []string{"user_id", "purchased", "expiry", "expired_notified", "plan", "upgraded"}, subscriptionRows},
		{"param_links.csv", []string{"link_id", "start", "end", "created", "num_urls", "num_messages"}, linkRows},
		{"user_usage.csv", []string{"user_id", "date", "links_used", "tokens"}, usageRows},
	}

	files := make([]File, 0, len(renderers))
	for _, r := range renderers {
		data, err := write(r.header, r.rows(snap))
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", r.name, err)
		}
		files = append(files, File{Name: r.name, Data: data})
	}
	return files, nil
}

func write(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func id(v int64) string { return strconv.FormatInt(v, 10) }

func subscriptionRows(snap *models.Snapshot) [][]string {
	subs := make([]models.Subscription, 0, len(snap.Subscriptions))
	for _, s := range snap.Subscriptions {
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].UserID < subs[j].UserID })

	rows := make([][]string, 0, len(subs))
	for _, s := range subs {
		rows = append(rows, []string{
			id(s.UserID),
			s.PurchasedAt.UTC().Format(timeLayout),
			s.ExpiresAt.UTC().Format(timeLayout),
			strconv.FormatBool(s.ExpiredNotified),
			string(s.Plan),
			strconv.FormatBool(s.Upgraded),
		})
	}
	return rows
}

func linkRows(snap *models.Snapshot) [][]string {
	rows := make([][]string, 0, len(snap.LinkOrder))
	for _, token := range snap.LinkOrder {
		l, ok := snap.Links[token]
		if !ok {
			continue
		}
		rows = append(rows, []string{
			l.Token,
			strconv.Itoa(l.RangeStart),
			strconv.Itoa(l.RangeEnd),
			l.CreatedAt.UTC().Format(timeLayout),
			strconv.Itoa(len(l.URLs)),
			strconv.Itoa(len(l.Items)),
		})
	}
	return rows
}

func usageRows(snap *models.Snapshot) [][]string {
	usage := make([]models.UserUsage, 0, len(snap.Usage))
	for _, u := range snap.Usage {
		usage = append(usage, u)
	}
	sort.Slice(usage, func(i, j int) bool { return usage[i].UserID < usage[j].UserID })

	rows := make([][]string, 0, len(usage))
	for _, u := range usage {
		rows = append(rows, []string{
			id(u.UserID),
			u.Date,
			strconv.Itoa(len(u.Tokens)),
			strings.Join(u.Tokens, ";"),
		})
	}
	return rows
}
